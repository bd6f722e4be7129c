package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/freedom/pkg/duckchat"
	"github.com/papercomputeco/freedom/pkg/llm"
	"github.com/papercomputeco/freedom/pkg/metrics"
)

var _ = Describe("POST /ddg/chat/completions", func() {
	var (
		g        *Gateway
		upstream *fakeDuckchat
		pub      *recordingPublisher
	)

	BeforeEach(func() {
		upstream = newFakeDuckchat()
		pub = &recordingPublisher{}
		g = newTestGateway(upstream.server.URL, testGatewayOpts{publisher: pub})
	})

	AfterEach(func() {
		Expect(g.Close()).To(Succeed())
		upstream.server.Close()
	})

	Context("in non-streaming mode", func() {
		It("aggregates fragments in order into one assistant message", func() {
			resp, err := g.server.Test(newChatRequest(chatBody("", false, userSays("hi")), ""), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))

			var result llm.CompletionResult
			Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
			Expect(result.Choices).To(HaveLen(1))
			Expect(result.Choices[0].Message.Role).To(Equal(llm.RoleAssistant))
			Expect(result.Choices[0].Message.Content).To(Equal("ab"))
		})

		It("surfaces the backend's rotated token", func() {
			resp, err := g.server.Test(newChatRequest(chatBody("", false, userSays("hi")), ""), -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(resp.Header.Get("X-Session-Id")).To(Equal("rotated-token"))
			Expect(upstream.statusCalls.Load()).To(Equal(int32(1)))
			Expect(upstream.lastChatToken()).To(Equal("handshake-token"))
		})

		It("answers 502 without a partial body when the stream breaks", func() {
			upstream.onChat(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(duckchat.TokenHeader, "rotated-token")
				w.Header().Set("Content-Length", "4096")
				w.WriteHeader(http.StatusOK)
				fmt.Fprint(w, "data: {\"message\":\"partial\"}\n\n")
			})

			resp, err := g.server.Test(newChatRequest(chatBody("", false, userSays("hi")), ""), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).NotTo(ContainSubstring("partial"))
		})
	})

	Context("in streaming mode", func() {
		It("re-emits each fragment as a delta, then the sentinel", func() {
			resp, err := g.server.Test(newChatRequest(chatBody("", true, userSays("hi")), ""), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(resp.Header.Get("X-Session-Id")).To(Equal("rotated-token"))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(HavePrefix(`data: {"choices":[{"delta":"a"}]}` + "\n\n"))
			Expect(string(body)).To(HaveSuffix("data: [DONE]\n\n"))

			Expect(string(body)).To(ContainSubstring("\n\n:\n\n"))

			deltas, done := parseDeltas(string(body))
			Expect(deltas).To(Equal([]string{"a", "b"}))
			Expect(done).To(BeTrue())
		})

		It("stops at the upstream sentinel", func() {
			upstream.onChat(upstreamEvents("", `{"message":"a"}`, "[DONE]", `{"message":"late"}`))

			resp, err := g.server.Test(newChatRequest(chatBody("", true, userSays("hi")), ""), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			deltas, done := parseDeltas(string(body))
			Expect(deltas).To(Equal([]string{"a"}))
			Expect(done).To(BeTrue())
		})

		It("terminates an empty answer with only the sentinel", func() {
			upstream.onChat(upstreamEvents("rotated-token", "[DONE]"))

			resp, err := g.server.Test(newChatRequest(chatBody("", true, userSays("hi")), ""), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("data: [DONE]\n\n"))
		})

		It("surfaces the token that was used when the backend does not rotate it", func() {
			upstream.onChat(upstreamEvents("", `{"message":"a"}`, "[DONE]"))

			resp, err := g.server.Test(newChatRequest(chatBody("", true, userSays("hi")), "caller-token"), -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(resp.Header.Get("X-Session-Id")).To(Equal("caller-token"))
		})
	})

	Context("with a caller-supplied session", func() {
		It("skips the handshake and passes the token through unchanged", func() {
			resp, err := g.server.Test(newChatRequest(chatBody("", false, userSays("hi")), "4-caller-token"), -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(upstream.statusCalls.Load()).To(BeZero())
			Expect(upstream.lastChatToken()).To(Equal("4-caller-token"))
		})
	})

	Context("when the handshake fails", func() {
		BeforeEach(func() {
			upstream.onStatus(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})

		It("answers 502 without calling the chat endpoint", func() {
			resp, err := g.server.Test(newChatRequest(chatBody("", true, userSays("hi")), ""), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			var errResp llm.ErrorResponse
			Expect(json.NewDecoder(resp.Body).Decode(&errResp)).To(Succeed())
			Expect(errResp.Error).NotTo(BeEmpty())
			Expect(upstream.chatCalls.Load()).To(BeZero())
			Expect(resp.Header.Get("X-Session-Id")).To(BeEmpty())
		})
	})

	Context("when the backend rejects the chat call", func() {
		BeforeEach(func() {
			upstream.onChat(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"action":"error","status":500,"type":"ERR_INTERNAL"}`)
			})
		})

		It("answers 400 with an empty body in both modes", func() {
			for _, stream := range []bool{false, true} {
				resp, err := g.server.Test(newChatRequest(chatBody("", stream, userSays("hi")), ""), -1)
				Expect(err).NotTo(HaveOccurred())

				body, err := io.ReadAll(resp.Body)
				resp.Body.Close()
				Expect(err).NotTo(HaveOccurred())

				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(body).To(BeEmpty())
			}
		})
	})

	Context("when the backend is unreachable", func() {
		It("answers 502", func() {
			resp, err := g.server.Test(newChatRequest(chatBody("", false, userSays("hi")), "caller-token"), -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			upstream.server.Close()

			resp, err = g.server.Test(newChatRequest(chatBody("", false, userSays("hi")), "caller-token"), -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		})
	})

	Context("with an invalid request", func() {
		DescribeTable("answers 400 without contacting the backend",
			func(body string) {
				resp, err := g.server.Test(newChatRequest(strings.NewReader(body), ""), -1)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var errResp llm.ErrorResponse
				Expect(json.NewDecoder(resp.Body).Decode(&errResp)).To(Succeed())
				Expect(errResp.Error).NotTo(BeEmpty())
				Expect(upstream.statusCalls.Load()).To(BeZero())
				Expect(upstream.chatCalls.Load()).To(BeZero())
			},
			Entry("malformed JSON", `{"messages": [`),
			Entry("unsupported model", `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`),
			Entry("system role", `{"messages":[{"role":"system","content":"be nice"}]}`),
			Entry("empty messages", `{"messages":[]}`),
		)
	})

	It("defaults the model and strips the stream flag upstream", func() {
		resp, err := g.server.Test(newChatRequest(chatBody("", true, userSays("hi")), ""), -1)
		Expect(err).NotTo(HaveOccurred())
		_, _ = io.ReadAll(resp.Body)
		resp.Body.Close()

		body := upstream.lastChatBody()
		Expect(body).To(HaveKeyWithValue("model", llm.DefaultModel))
		Expect(body).NotTo(HaveKey("stream"))
	})

	It("forwards the requested model", func() {
		resp, err := g.server.Test(newChatRequest(chatBody(llm.ModelClaude3Haiku, false, userSays("hi")), ""), -1)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(upstream.lastChatBody()).To(HaveKeyWithValue("model", llm.ModelClaude3Haiku))
	})

	Describe("exchange events", func() {
		It("publishes one event per exchange without token or content", func() {
			resp, err := g.server.Test(newChatRequest(chatBody("", true, userSays("secret question")), ""), -1)
			Expect(err).NotTo(HaveOccurred())
			_, _ = io.ReadAll(resp.Body)
			resp.Body.Close()

			Expect(g.Close()).To(Succeed())

			events := pub.published()
			Expect(events).To(HaveLen(1))

			event := events[0]
			Expect(event.Request.Model).To(Equal(llm.DefaultModel))
			Expect(event.Request.Streaming).To(BeTrue())
			Expect(event.Request.MessageCount).To(Equal(1))
			Expect(event.Request.Path).To(Equal(ChatCompletionsPath))
			Expect(event.Session.Handshake).To(BeTrue())
			Expect(event.Session.Rotated).To(BeTrue())
			Expect(event.Result.Outcome).To(Equal(metrics.OutcomeOK))
			Expect(event.Result.Fragments).To(Equal(2))
			Expect(event.Result.ContentBytes).To(Equal(2))

			raw, err := json.Marshal(event)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).NotTo(ContainSubstring("handshake-token"))
			Expect(string(raw)).NotTo(ContainSubstring("rotated-token"))
			Expect(string(raw)).NotTo(ContainSubstring("secret question"))
		})

		It("records upstream rejections", func() {
			upstream.onChat(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			})

			resp, err := g.server.Test(newChatRequest(chatBody("", false, userSays("hi")), ""), -1)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			Expect(g.Close()).To(Succeed())

			events := pub.published()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Result.Outcome).To(Equal(metrics.OutcomeUpstreamError))
			Expect(events[0].Result.UpstreamStatus).To(Equal(http.StatusTooManyRequests))
			Expect(events[0].Request.HTTPStatus).To(Equal(http.StatusBadRequest))
		})
	})
})

var _ = Describe("Caller disconnect", func() {
	var (
		g         *Gateway
		upstream  *fakeDuckchat
		listener  net.Listener
		cancelled chan struct{}

		// repeat is sent every 20ms after a first content event.
		repeat string
	)

	JustBeforeEach(func() {
		cancelled = make(chan struct{})
		var once sync.Once
		markCancelled := func() { once.Do(func() { close(cancelled) }) }

		upstream = newFakeDuckchat()
		upstream.onChat(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, "data: {\"message\":\"first\"}\n\n")
			w.(http.Flusher).Flush()
			for {
				select {
				case <-r.Context().Done():
					markCancelled()
					return
				case <-time.After(20 * time.Millisecond):
					if _, err := fmt.Fprintf(w, "data: %s\n\n", repeat); err != nil {
						markCancelled()
						return
					}
					w.(http.Flusher).Flush()
				}
			}
		})

		g = newTestGateway(upstream.server.URL, testGatewayOpts{})

		var err error
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		go func() {
			defer GinkgoRecover()
			_ = g.RunWithListener(listener)
		}()
	})

	AfterEach(func() {
		Expect(g.Close()).To(Succeed())
		upstream.server.Close()
	})

	readFirstDeltaAndHangUp := func() {
		req, err := http.NewRequest(http.MethodPost, "http://"+listener.Addr().String()+ChatCompletionsPath,
			chatBody("", true, userSays("hi")))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")

		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		resp, err := client.Do(req)
		Expect(err).NotTo(HaveOccurred())

		line, err := bufio.NewReader(resp.Body).ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(line).To(HavePrefix(`data: {"choices":[{"delta":"first"}]}`))

		Expect(resp.Body.Close()).To(Succeed())
	}

	Context("while content keeps arriving", func() {
		BeforeEach(func() {
			repeat = `{"message":"tick"}`
		})

		It("releases the upstream connection", func() {
			readFirstDeltaAndHangUp()
			Eventually(cancelled, 5*time.Second).Should(BeClosed())
		})
	})

	Context("while the backend only sends heartbeats", func() {
		BeforeEach(func() {
			repeat = `{"action":"heartbeat"}`
		})

		It("releases the upstream connection", func() {
			readFirstDeltaAndHangUp()
			Eventually(cancelled, 5*time.Second).Should(BeClosed())
		})
	})
})
