package chatcmder

import (
	"bytes"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Line input", func() {
	It("scans piped input line by line and ends with EOF", func() {
		out := &bytes.Buffer{}
		input := newLineReader(strings.NewReader("first\nsecond\n"), out, "")
		Expect(input).To(BeAssignableToTypeOf(&scannerInput{}))

		line, err := input.ReadLine("> ")
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("first"))

		line, err = input.ReadLine("> ")
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(Equal("second"))

		_, err = input.ReadLine("> ")
		Expect(err).To(MatchError(io.EOF))
		Expect(out.String()).To(Equal("> > > \n"))
		Expect(input.Close()).To(Succeed())
	})

	It("keeps a history file under the user config directory", func() {
		Expect(defaultHistoryFile()).To(Or(BeEmpty(), HaveSuffix("dermachat/history")))
	})
})
