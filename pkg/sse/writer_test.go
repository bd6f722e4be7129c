package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countingWriter records how many Write calls it received.
type countingWriter struct {
	bytes.Buffer
	writes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes++
	return c.Buffer.Write(p)
}

var _ = Describe("Writer", func() {
	It("frames a payload as a single data event", func() {
		var buf bytes.Buffer
		w := NewWriter(&buf)

		Expect(w.WriteString(`{"choices":[{"delta":"Hi"}]}`)).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"choices\":[{\"delta\":\"Hi\"}]}\n\n"))
	})

	It("writes the [DONE] sentinel as a plain data event", func() {
		var buf bytes.Buffer
		w := NewWriter(&buf)

		Expect(w.WriteString("[DONE]")).To(Succeed())
		Expect(buf.String()).To(Equal("data: [DONE]\n\n"))
	})

	It("splits multi-line payloads across data lines", func() {
		var buf bytes.Buffer
		w := NewWriter(&buf)

		Expect(w.WriteString("one\ntwo\r\nthree")).To(Succeed())
		Expect(buf.String()).To(Equal("data: one\ndata: two\ndata: three\n\n"))
	})

	It("hands each event to the destination in one write", func() {
		cw := &countingWriter{}
		w := NewWriter(cw)

		Expect(w.WriteString("a\nb")).To(Succeed())
		Expect(w.WriteString("c")).To(Succeed())
		Expect(cw.writes).To(Equal(2))
	})

	It("round-trips through the Reader", func() {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		payloads := []string{"first", "multi\nline", "[DONE]"}
		for _, p := range payloads {
			Expect(w.WriteString(p)).To(Succeed())
		}

		r := NewReader(strings.NewReader(buf.String()))
		for _, want := range payloads {
			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal(want))
		}
	})

	It("writes keep-alive comments that readers skip", func() {
		var buf bytes.Buffer
		w := NewWriter(&buf)

		Expect(w.WriteComment()).To(Succeed())
		Expect(w.WriteString("after")).To(Succeed())
		Expect(buf.String()).To(HavePrefix(":\n\n"))

		r := NewReader(strings.NewReader(buf.String()))
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Data).To(Equal("after"))
	})

	It("returns the destination error", func() {
		pr, pw := io.Pipe()
		Expect(pr.Close()).To(Succeed())

		w := NewWriter(pw)
		err := w.WriteString("dropped")
		Expect(errors.Is(err, io.ErrClosedPipe)).To(BeTrue())
	})
})
