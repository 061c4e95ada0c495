package chatcmder

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Chat Command", func() {
	var (
		ctx     context.Context
		tmpDir  string
		pngPath string
		out     *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "dermachat-test-*")
		Expect(err).NotTo(HaveOccurred())

		pngPath = filepath.Join(tmpDir, "rash.png")
		png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
		Expect(os.WriteFile(pngPath, png, 0644)).To(Succeed())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	chat := func(args []string, lines ...string) error {
		cmd := NewChatCmd()
		cmd.SetArgs(append([]string{"--provider", "mock", "--style", "notty"}, args...))
		cmd.SetIn(strings.NewReader(strings.Join(lines, "\n") + "\n"))
		cmd.SetOut(out)
		cmd.SetErr(io.Discard)
		return cmd.ExecuteContext(ctx)
	}

	It("diagnoses an attached photo and answers follow-ups", func() {
		err := chat(nil,
			"/image "+pngPath,
			"which cream should I use?",
			"/quit",
		)
		Expect(err).NotTo(HaveOccurred())

		Expect(out.String()).To(ContainSubstring("Session chat_1"))
		Expect(out.String()).To(ContainSubstring("Attached rash.png (image/png)"))
		Expect(out.String()).To(ContainSubstring("Contact dermatitis"))
		Expect(out.String()).To(ContainSubstring("which cream should I use?"))
	})

	It("sends a photo on its own", func() {
		Expect(chat(nil, "/image "+pngPath, "/send")).To(Succeed())

		Expect(out.String()).To(ContainSubstring("Contact dermatitis"))
	})

	It("reports errors and keeps going", func() {
		err := chat(nil,
			"/send",
			"/switch chat_42",
			"/image "+filepath.Join(tmpDir, "missing.png"),
			"/bogus",
			"is this still working?",
		)
		Expect(err).NotTo(HaveOccurred())

		Expect(out.String()).To(ContainSubstring("error: no image attached"))
		Expect(out.String()).To(ContainSubstring("error: session not found"))
		Expect(out.String()).To(ContainSubstring("error: could not read image"))
		Expect(out.String()).To(ContainSubstring("error: unknown command /bogus"))
		Expect(out.String()).To(ContainSubstring("You asked"))
	})

	It("rejects files that are not JPEG or PNG", func() {
		textPath := filepath.Join(tmpDir, "notes.txt")
		Expect(os.WriteFile(textPath, []byte("just some notes"), 0644)).To(Succeed())

		Expect(chat(nil, "/image "+textPath)).To(Succeed())

		Expect(out.String()).To(ContainSubstring("error: unsupported image type"))
	})

	It("manages sessions", func() {
		err := chat(nil,
			"hello",
			"/new",
			"/sessions",
			"/switch chat_1",
			"/history",
		)
		Expect(err).NotTo(HaveOccurred())

		Expect(out.String()).To(ContainSubstring("Started session chat_2"))
		Expect(out.String()).To(ContainSubstring("  chat_1\n* chat_2"))
		Expect(out.String()).To(ContainSubstring("Switched to session chat_1"))
		Expect(out.String()).To(ContainSubstring("You:"))
		Expect(out.String()).To(ContainSubstring("hello"))
	})

	It("saves transcript images when asked", func() {
		imageDir := filepath.Join(tmpDir, "images")

		err := chat([]string{"--images", imageDir}, "/image "+pngPath, "/send", "/image "+pngPath, "what is it?")
		Expect(err).NotTo(HaveOccurred())

		Expect(filepath.Join(imageDir, "image-1.png")).To(BeAnExistingFile())
		Expect(filepath.Join(imageDir, "image-2.png")).To(BeAnExistingFile())
		Expect(out.String()).To(ContainSubstring("image-1.png"))

		saved, err := os.ReadFile(filepath.Join(imageDir, "image-1.png"))
		Expect(err).NotTo(HaveOccurred())
		original, err := os.ReadFile(pngPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved).To(Equal(original))
	})

	It("fails on an unknown provider", func() {
		err := chat([]string{"--provider", "nope"})
		Expect(err).To(MatchError(ContainSubstring("unsupported llm provider")))
	})
})
