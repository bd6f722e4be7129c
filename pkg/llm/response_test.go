package llm_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/freedom/pkg/llm"
)

var _ = Describe("Response shapes", func() {
	It("serializes a CompletionResult with one assistant message", func() {
		payload, err := json.Marshal(llm.NewCompletionResult("ab"))
		Expect(err).NotTo(HaveOccurred())
		Expect(payload).To(MatchJSON(`{"choices":[{"message":{"role":"assistant","content":"ab"}}]}`))
	})

	It("serializes a DeltaChunk with the fragment as the delta", func() {
		payload, err := json.Marshal(llm.NewDeltaChunk("a"))
		Expect(err).NotTo(HaveOccurred())
		Expect(payload).To(MatchJSON(`{"choices":[{"delta":"a"}]}`))
	})

	It("keeps empty assistant content in the payload", func() {
		payload, err := json.Marshal(llm.NewCompletionResult(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(payload).To(MatchJSON(`{"choices":[{"message":{"role":"assistant","content":""}}]}`))
	})
})
