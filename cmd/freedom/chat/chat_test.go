package chatcmder

import (
	"bytes"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/freedom/gateway"
	"github.com/papercomputeco/freedom/pkg/config"
)

var _ = Describe("NewChatCmd", func() {
	It("registers the client flags", func() {
		cmd := NewChatCmd()
		Expect(cmd.Use).To(Equal("chat"))
		Expect(cmd.Flags().Lookup("gateway-target").Shorthand).To(Equal("g"))
		Expect(cmd.Flags().Lookup("model").Shorthand).To(Equal("m"))
		Expect(cmd.Flags().Lookup("render")).NotTo(BeNil())
	})
})

var _ = Describe("Chat session", func() {
	var (
		tmpDir  string
		backend *fakeBackend
		g       *gateway.Gateway
		target  string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "freedom-chat-test-*")
		Expect(err).NotTo(HaveOccurred())

		backend = newFakeBackend()
		target, g = startGateway(backend)
	})

	AfterEach(func() {
		Expect(g.Close()).To(Succeed())
		backend.server.Close()
		os.RemoveAll(tmpDir)
	})

	runChat := func(input string, args ...string) (string, string) {
		cmd := newChatCmd(&chatCommander{flags: config.Registry})
		cmd.Flags().String("config-dir", tmpDir, "")
		cmd.Flags().Bool("debug", false, "")

		var stdout, stderr bytes.Buffer
		cmd.SetIn(strings.NewReader(input))
		cmd.SetOut(&stdout)
		cmd.SetErr(&stderr)
		cmd.SetArgs(append([]string{"--gateway-target", target}, args...))

		Expect(cmd.Execute()).To(Succeed())
		return stdout.String(), stderr.String()
	}

	It("streams replies and carries the session token between turns", func() {
		out, _ := runChat("hello\nagain\n/exit\n")

		Expect(out).To(ContainSubstring("assistant> reply 1"))
		Expect(out).To(ContainSubstring("assistant> reply 2"))
		Expect(out).NotTo(ContainSubstring("\x1b"))

		Expect(backend.handshakes()).To(Equal(1))
		Expect(backend.tokens()).To(Equal([]string{"handshake-1", "rotated-1"}))
		Expect(backend.messageCounts()).To(Equal([]int{1, 3}))
	})

	It("starts a fresh session after /new", func() {
		runChat("hello\n/new\nhello\n")

		Expect(backend.handshakes()).To(Equal(2))
		Expect(backend.tokens()).To(Equal([]string{"handshake-1", "handshake-2"}))
		Expect(backend.messageCounts()).To(Equal([]int{1, 1}))
	})

	It("prints whole replies in render mode", func() {
		out, _ := runChat("hello\n", "--render")

		Expect(out).To(ContainSubstring("reply 1"))
		Expect(backend.tokens()).To(Equal([]string{"handshake-1"}))
	})

	It("reports rejected turns and keeps the rotated token", func() {
		backend.rejectCalls(1)

		out, errOut := runChat("hello\nhello\n")
		Expect(errOut).To(ContainSubstring("backend rejected the request"))
		Expect(out).To(ContainSubstring("reply 2"))

		Expect(backend.handshakes()).To(Equal(1))
		Expect(backend.tokens()).To(Equal([]string{"handshake-1", "rotated-1"}))
		Expect(backend.messageCounts()).To(Equal([]int{1, 1}))
	})
})
