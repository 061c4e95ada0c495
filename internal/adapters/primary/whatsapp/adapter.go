package whatsapp

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	"github.com/vibin/derma-chat/config"
	"github.com/vibin/derma-chat/internal/core/services"
	"github.com/vibin/derma-chat/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

// sessionPrefix namespaces WhatsApp chats in the session registry
const sessionPrefix = "whatsapp-"

// turnTimeout bounds one turn, diagnosis and follow-up together
const turnTimeout = 3 * time.Minute

// dedupeWindow is how long a handled message ID is remembered
const dedupeWindow = 10 * time.Minute

// TurnSubmitter is the part of the analysis service the transport drives
type TurnSubmitter interface {
	OpenSession(id string) string
	SubmitTurn(ctx context.Context, req services.TurnRequest) (*services.TurnResult, error)
}

// WhatsAppAdapter turns WhatsApp group messages into analysis turns and
// implements ports.WhatsAppPort
type WhatsAppAdapter struct {
	client        *whatsmeow.Client
	store         *store.Device
	storeDir      string
	service       TurnSubmitter
	log           logger.Logger
	config        *config.WhatsAppConfig
	mutex         sync.RWMutex
	limiter       *rate.Limiter // paces outbound sends to stay inside WhatsApp limits
	formatter     *WhatsAppFormatter
	canned        *CannedReplies
	seenMu        sync.Mutex
	processedMsgs map[string]time.Time // message IDs already handled
	lastPrune     time.Time
}

// NewWhatsAppAdapter creates a new WhatsApp adapter
func NewWhatsAppAdapter(service TurnSubmitter, cfg *config.Config, log logger.Logger) (*WhatsAppAdapter, error) {
	if err := os.MkdirAll(cfg.WhatsApp.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp store directory: %w", err)
	}

	// the adapter owns its copy so group updates never touch the caller's config
	waConfig := cfg.WhatsApp
	waConfig.AllowedGroups = append([]string(nil), cfg.WhatsApp.AllowedGroups...)
	waConfig.TriggerWords = append([]string(nil), cfg.WhatsApp.TriggerWords...)

	return &WhatsAppAdapter{
		storeDir:  cfg.WhatsApp.StoreDir,
		service:   service,
		log:       log.WithField("component", "whatsapp"),
		config:    &waConfig,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 10),
		formatter: NewWhatsAppFormatter(),
		canned:    NewCannedReplies(cfg.WhatsApp.BotName),
	}, nil
}

// Connect establishes the connection to WhatsApp, pairing by QR code when
// the device store has no session yet
func (a *WhatsAppAdapter) Connect(ctx context.Context) error {
	dbLog := waLog.Stdout("Database", "WARN", true)
	container, err := sqlstore.New("sqlite3", fmt.Sprintf("file:%s/whatsmeow.db?_foreign_keys=on", a.storeDir), dbLog)
	if err != nil {
		return fmt.Errorf("failed to initialize WhatsApp database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice()
	if err != nil {
		return fmt.Errorf("failed to get device store: %w", err)
	}
	a.store = deviceStore

	clientLog := waLog.Stdout("Client", "INFO", true)
	a.client = whatsmeow.NewClient(deviceStore, clientLog)
	a.client.AddEventHandler(a.eventHandler)

	if a.client.Store.ID != nil {
		if err := a.client.Connect(); err != nil {
			return fmt.Errorf("error connecting to WhatsApp: %w", err)
		}
		a.log.Info("Connected to WhatsApp")
		return nil
	}

	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("error getting QR channel: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("error connecting to WhatsApp: %w", err)
	}

	for evt := range qrChan {
		if evt.Event == "code" {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			a.log.Info("Scan the QR code with your WhatsApp app")
		} else {
			a.log.Info("QR channel event", "event", evt.Event)
		}
	}
	return nil
}

// Disconnect closes the connection to WhatsApp
func (a *WhatsAppAdapter) Disconnect() error {
	if a.client != nil {
		a.client.Disconnect()
	}
	return nil
}

// IsConnected checks if the client is connected
func (a *WhatsAppAdapter) IsConnected() bool {
	return a.client != nil && a.client.IsConnected()
}

// Start connects if needed and handles messages until ctx is done
func (a *WhatsAppAdapter) Start(ctx context.Context) error {
	a.log.Info("WhatsApp adapter is starting")

	if !a.IsConnected() {
		if err := a.Connect(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	a.log.Info("WhatsApp adapter stopping")
	return a.Disconnect()
}

// eventHandler handles WhatsApp events
func (a *WhatsAppAdapter) eventHandler(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		a.handleMessage(evt)
	case *events.Connected:
		a.log.Info("WhatsApp connected")
	case *events.Disconnected:
		a.log.Info("WhatsApp disconnected")
	case *events.LoggedOut:
		a.log.Warn("WhatsApp logged out")
		if a.store != nil {
			if err := a.store.Delete(); err != nil {
				a.log.Error("Failed to delete device store on logout", "error", err)
			}
		}
	}
}

// handleMessage decides whether a message is addressed to the bot and, if
// so, submits it as a turn in the background
func (a *WhatsAppAdapter) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || !evt.Info.IsGroup {
		return
	}
	if evt.Info.ID != "" {
		if a.markSeen(evt.Info.ID, time.Now()) {
			return
		}
	}

	chatJID := evt.Info.Chat.String()
	if !a.isGroupAllowed(chatJID) {
		return
	}

	text := getMessageText(evt)
	isMention := a.mentionsBot(text)
	if !isMention && !a.isReplyToBot(evt) {
		return
	}

	hasImage := evt.Message.GetImageMessage() != nil
	query := text
	if isMention {
		query = a.stripTriggerWords(text)
	}
	if !hasImage && query == "" {
		return
	}
	if !hasImage && a.canned != nil {
		if reply, ok := a.canned.Match(query); ok {
			a.log.Info("Answering with canned reply", "chat", chatJID, "message_id", evt.Info.ID)
			go a.sendReply(reply, evt)
			return
		}
	}

	a.log.Info("Received WhatsApp turn",
		"chat", chatJID,
		"message_id", evt.Info.ID,
		"has_image", hasImage,
		"is_mention", isMention)

	go a.processTurn(evt, query, hasImage)
}

// markSeen records id and reports whether it was already handled. Entries
// older than dedupeWindow are dropped at most once per window.
func (a *WhatsAppAdapter) markSeen(id string, now time.Time) bool {
	a.seenMu.Lock()
	defer a.seenMu.Unlock()

	if a.processedMsgs == nil {
		a.processedMsgs = make(map[string]time.Time)
	}
	if now.Sub(a.lastPrune) >= dedupeWindow {
		for seenID, at := range a.processedMsgs {
			if now.Sub(at) >= dedupeWindow {
				delete(a.processedMsgs, seenID)
			}
		}
		a.lastPrune = now
	}

	if at, ok := a.processedMsgs[id]; ok && now.Sub(at) < dedupeWindow {
		return true
	}
	a.processedMsgs[id] = now
	return false
}

// mentionsBot reports whether text contains one of the trigger words
func (a *WhatsAppAdapter) mentionsBot(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)

	a.mutex.RLock()
	defer a.mutex.RUnlock()
	for _, word := range a.config.TriggerWords {
		if word != "" && strings.Contains(lower, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

// stripTriggerWords removes every trigger word, longest first so that
// "@derma" is not left as "@"
func (a *WhatsAppAdapter) stripTriggerWords(text string) string {
	a.mutex.RLock()
	words := append([]string(nil), a.config.TriggerWords...)
	a.mutex.RUnlock()

	sort.Slice(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })

	cleaned := text
	for _, word := range words {
		if word == "" {
			continue
		}
		cleaned = regexp.MustCompile("(?i)"+regexp.QuoteMeta(word)).ReplaceAllString(cleaned, " ")
	}
	return strings.Join(strings.Fields(cleaned), " ")
}

// isGroupAllowed checks if the group is in the allowed list. An empty list
// allows nothing and "*" allows every group.
func (a *WhatsAppAdapter) isGroupAllowed(groupJID string) bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	for _, allowed := range a.config.AllowedGroups {
		if allowed == "*" || (allowed != "" && strings.Contains(groupJID, allowed)) {
			return true
		}
	}
	return false
}

// getMessageText extracts the text or image caption of a message
func getMessageText(evt *events.Message) string {
	if evt.Message == nil {
		return ""
	}
	if text := evt.Message.GetConversation(); text != "" {
		return text
	}
	if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := evt.Message.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	return ""
}

// sendReply formats a reply and sends it quoting the original message
func (a *WhatsAppAdapter) sendReply(response string, evt *events.Message) {
	if !a.IsConnected() {
		a.log.Error("WhatsApp client not connected")
		return
	}

	if err := a.limiter.Wait(context.Background()); err != nil {
		a.log.Error("Rate limiter error", "error", err)
		return
	}

	msg := buildReply(a.formatter.Format(response), evt)

	sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := a.client.SendMessage(sendCtx, evt.Info.Chat, msg); err != nil {
		a.log.Error("Failed to send WhatsApp reply", "chat", evt.Info.Chat.String(), "error", err)
		return
	}

	a.log.Info("WhatsApp reply sent", "chat", evt.Info.Chat.String(), "length", len(msg.GetExtendedTextMessage().GetText()))
}

// buildReply creates a text message threaded under evt
func buildReply(text string, evt *events.Message) *waProto.Message {
	return &waProto.Message{
		ExtendedTextMessage: &waProto.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waProto.ContextInfo{
				StanzaID:      proto.String(evt.Info.ID),
				Participant:   proto.String(evt.Info.Sender.String()),
				QuotedMessage: quotedCopy(evt.Message),
			},
		},
	}
}

// quotedCopy keeps only the text of the quoted message; images are not
// re-sent inside the quote
func quotedCopy(msg *waProto.Message) *waProto.Message {
	if img := msg.GetImageMessage(); img != nil {
		return &waProto.Message{Conversation: proto.String(img.GetCaption())}
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return &waProto.Message{Conversation: proto.String(ext.GetText())}
	}
	return &waProto.Message{Conversation: proto.String(msg.GetConversation())}
}
