package duckchat_test

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/freedom/pkg/duckchat"
)

var _ = Describe("ResolveSession", func() {
	var (
		backend *fakeBackend
		client  *duckchat.Client
	)

	BeforeEach(func() {
		backend = newFakeBackend()
		var err error
		client, err = duckchat.NewClient(duckchat.Config{BaseURL: backend.server.URL})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		backend.Close()
	})

	It("uses a caller token as-is without a handshake", func() {
		session, err := client.ResolveSession(context.Background(), "caller-token")
		Expect(err).NotTo(HaveOccurred())
		Expect(session.Token).To(Equal("caller-token"))
		Expect(session.Fetched).To(BeFalse())
		Expect(backend.statusCalls.Load()).To(BeZero())
	})

	It("performs exactly one handshake when no token is supplied", func() {
		session, err := client.ResolveSession(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(session.Token).To(Equal("issued-token"))
		Expect(session.Fetched).To(BeTrue())
		Expect(backend.statusCalls.Load()).To(Equal(int32(1)))
		Expect(backend.lastAccept()).To(Equal("1"))
	})

	It("treats a blank token as absent", func() {
		session, err := client.ResolveSession(context.Background(), "   ")
		Expect(err).NotTo(HaveOccurred())
		Expect(session.Token).To(Equal("issued-token"))
		Expect(backend.statusCalls.Load()).To(Equal(int32(1)))
	})

	It("fails when the status endpoint omits the token header", func() {
		backend.setStatus(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		_, err := client.ResolveSession(context.Background(), "")
		Expect(err).To(MatchError(duckchat.ErrHandshake))
		Expect(err).To(MatchError(duckchat.ErrMissingToken))
	})

	It("fails when the status endpoint returns a non-200 status", func() {
		backend.setStatus(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set(duckchat.TokenHeader, "ignored")
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.ResolveSession(context.Background(), "")
		Expect(err).To(MatchError(duckchat.ErrHandshake))
		Expect(err.Error()).To(ContainSubstring("429"))
	})

	It("fails when the backend is unreachable", func() {
		backend.Close()

		_, err := client.ResolveSession(context.Background(), "")
		Expect(err).To(MatchError(duckchat.ErrHandshake))
	})

	It("issues an independent token per call", func() {
		var n int
		backend.setStatus(func(w http.ResponseWriter, _ *http.Request) {
			n++
			w.Header().Set(duckchat.TokenHeader, "token-"+string(rune('a'+n)))
		})

		first, err := client.ResolveSession(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		second, err := client.ResolveSession(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Token).NotTo(Equal(second.Token))
		Expect(backend.statusCalls.Load()).To(Equal(int32(2)))
	})
})

var _ = Describe("NewClient", func() {
	It("rejects a base url without a scheme", func() {
		_, err := duckchat.NewClient(duckchat.Config{BaseURL: "duckduckgo.com"})
		Expect(err).To(HaveOccurred())
	})

	It("applies defaults for an empty config", func() {
		client, err := duckchat.NewClient(duckchat.Config{})
		Expect(err).NotTo(HaveOccurred())
		Expect(client).NotTo(BeNil())
	})
})
