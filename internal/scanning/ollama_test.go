package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func pngFixture() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		scanner, err = NewOllama(server.URL()+"/", "llava:1.6")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should identify the model", func() {
		Expect(scanner.Name()).To(Equal("ollama:llava:1.6"))
	})

	When("the server answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					defer GinkgoRecover()
					body, err := io.ReadAll(r.Body)
					Expect(err).NotTo(HaveOccurred())
					var req ollamaChatRequest
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal("llava:1.6"))
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Done: true,
					Message: ollamaMessage{
						Role:    "assistant",
						Content: `{"merchant": "Cafe Central", "date": "2024-05-02", "amount": 8.4, "currency": "EUR"}`,
					},
				}),
			))
		})

		It("should return the parsed receipt", func() {
			data, err := scanner.ScanReceipt(context.Background(), pngFixture(), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Merchant).To(Equal("Cafe Central"))
			Expect(data.Amount).To(Equal(8.4))
			Expect(data.Currency).To(Equal("EUR"))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("should return the status and body", func() {
			_, err := scanner.ScanReceipt(context.Background(), pngFixture(), "image/png")
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})

	When("the image cannot be decoded", func() {
		It("should fail before calling the server", func() {
			_, err := scanner.ScanReceipt(context.Background(), []byte("not an image"), "image/jpeg")
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})

var _ = Describe("PrepareImage", func() {
	It("should pass PNG data through unchanged", func() {
		data := pngFixture()
		out, converted, err := PrepareImage(data, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(converted).To(BeFalse())
		Expect(out).To(Equal(data))
	})

	It("should convert other formats to PNG", func() {
		img := image.NewGray(image.Rect(0, 0, 2, 2))
		var buf bytes.Buffer
		Expect(png.Encode(&buf, img)).To(Succeed())

		// mislabelled content types are decoded by sniffing
		out, converted, err := PrepareImage(buf.Bytes(), "image/gif")
		Expect(err).NotTo(HaveOccurred())
		Expect(converted).To(BeTrue())
		_, format, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})

	It("should detect HEIC by its header", func() {
		header := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
		Expect(isHEICFormat(header)).To(BeTrue())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})
