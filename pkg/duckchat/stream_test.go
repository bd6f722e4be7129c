package duckchat_test

import (
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/freedom/pkg/duckchat"
)

func sseBody(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: " + p + "\n\n")
	}
	return b.String()
}

func drain(s *duckchat.FragmentStream) []string {
	var out []string
	for {
		fragment, err := s.Next()
		if err != nil {
			return out
		}
		out = append(out, fragment)
	}
}

var _ = Describe("FragmentStream", func() {
	It("yields message fragments in arrival order", func() {
		s := duckchat.NewFragmentStream(strings.NewReader(sseBody(
			`{"message":"a"}`, `{"message":"b"}`, `{"message":"c"}`, "[DONE]",
		)), nil)

		Expect(drain(s)).To(Equal([]string{"a", "b", "c"}))
		Expect(s.State()).To(Equal(duckchat.StateDone))
		Expect(s.Fragments()).To(Equal(3))
		Expect(s.Size()).To(Equal(3))
	})

	It("skips events without usable content", func() {
		s := duckchat.NewFragmentStream(strings.NewReader(sseBody(
			`{"message":"x"}`,
			`not json`,
			`{"role":"assistant"}`,
			`{"message":""}`,
			`{"message":42}`,
			`null`,
			`{"message":"y"}`,
			"[DONE]",
		)), nil)

		content, err := s.Collect()
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(Equal("xy"))
		Expect(s.Fragments()).To(Equal(2))
	})

	It("ignores events after the sentinel", func() {
		s := duckchat.NewFragmentStream(strings.NewReader(sseBody(
			`{"message":"a"}`, "[DONE]", `{"message":"b"}`,
		)), nil)

		content, err := s.Collect()
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(Equal("a"))
	})

	It("finishes when the body ends without a sentinel", func() {
		s := duckchat.NewFragmentStream(strings.NewReader(sseBody(`{"message":"a"}`)), nil)

		content, err := s.Collect()
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(Equal("a"))
		Expect(s.State()).To(Equal(duckchat.StateDone))
	})

	It("keeps returning io.EOF once done", func() {
		s := duckchat.NewFragmentStream(strings.NewReader(sseBody("[DONE]")), nil)

		_, err := s.Next()
		Expect(err).To(MatchError(io.EOF))
		_, err = s.Next()
		Expect(err).To(MatchError(io.EOF))
	})

	It("yields an empty result for an immediate sentinel", func() {
		s := duckchat.NewFragmentStream(strings.NewReader(sseBody("[DONE]")), nil)

		content, err := s.Collect()
		Expect(err).NotTo(HaveOccurred())
		Expect(content).To(BeEmpty())
	})

	It("reports each non-content event individually", func() {
		s := duckchat.NewFragmentStream(strings.NewReader(sseBody(
			`{"action":"heartbeat"}`, `{"message":"a"}`, `{"action":"heartbeat"}`, "[DONE]",
		)), nil)

		_, ok, err := s.NextEvent()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		fragment, ok, err := s.NextEvent()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(fragment).To(Equal("a"))

		_, ok, err = s.NextEvent()
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		_, _, err = s.NextEvent()
		Expect(err).To(MatchError(io.EOF))
		Expect(s.State()).To(Equal(duckchat.StateDone))
		Expect(s.Fragments()).To(Equal(1))
	})

	Context("when the body fails mid-stream", func() {
		errBoom := errors.New("connection reset")

		newFailing := func() *duckchat.FragmentStream {
			return duckchat.NewFragmentStream(io.MultiReader(
				strings.NewReader(sseBody(`{"message":"a"}`)),
				iotest.ErrReader(errBoom),
			), nil)
		}

		It("yields fragments received before the failure, then errors", func() {
			s := newFailing()

			fragment, err := s.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(fragment).To(Equal("a"))

			_, err = s.Next()
			Expect(err).To(MatchError(errBoom))
			Expect(s.State()).To(Equal(duckchat.StateErrored))
			Expect(s.Err()).To(MatchError(errBoom))
		})

		It("keeps the error sticky", func() {
			s := newFailing()
			drain(s)

			_, err := s.Next()
			Expect(err).To(MatchError(errBoom))
		})

		It("discards partial content when collecting", func() {
			content, err := newFailing().Collect()
			Expect(err).To(MatchError(errBoom))
			Expect(content).To(BeEmpty())
		})
	})

	It("names its states", func() {
		Expect(duckchat.StateReading.String()).To(Equal("reading"))
		Expect(duckchat.StateDone.String()).To(Equal("done"))
		Expect(duckchat.StateErrored.String()).To(Equal("errored"))
	})
})
