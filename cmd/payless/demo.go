package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vitwit/payless"
	"github.com/vitwit/payless/middleware"
	"github.com/vitwit/payless/types"
)

// demoHandlers returns mock upstreams for the priced paths of the default
// configuration. They stand in for the real AI and data providers.
func demoHandlers() map[string]http.Handler {
	return map[string]http.Handler{
		"/api/ai/chat": jsonBody(func(in map[string]any) (int, any) {
			msg, _ := in["message"].(string)
			if msg == "" {
				return http.StatusBadRequest, map[string]any{"error": "Message is required"}
			}
			return ok(map[string]any{"message": "Based on your input \"" + msg + "\", here is a response.", "model": "demo"})
		}),
		"/api/ai/image": jsonBody(func(in map[string]any) (int, any) {
			prompt, _ := in["prompt"].(string)
			if prompt == "" {
				return http.StatusBadRequest, map[string]any{"error": "Prompt is required"}
			}
			return ok(map[string]any{"prompt": prompt, "url": "https://images.payless.network/demo.png", "size": "1024x1024"})
		}),
		"/api/ai/tts": jsonBody(func(in map[string]any) (int, any) {
			text, _ := in["text"].(string)
			if text == "" {
				return http.StatusBadRequest, map[string]any{"error": "Text is required"}
			}
			return ok(map[string]any{"text": text, "voice": "alloy", "format": "mp3"})
		}),
		"/api/ai/translate": jsonBody(func(in map[string]any) (int, any) {
			text, _ := in["text"].(string)
			target, _ := in["targetLanguage"].(string)
			if text == "" || target == "" {
				return http.StatusBadRequest, map[string]any{"error": "Text and targetLanguage are required"}
			}
			return ok(map[string]any{"original": text, "translated": "[" + target + "] " + text, "targetLanguage": target})
		}),
		"/api/data/weather": query("city", "San Francisco", func(city string) map[string]any {
			return map[string]any{"city": city, "temperature": 72, "condition": "Partly Cloudy", "humidity": 65, "windSpeed": 10}
		}),
		"/api/data/stock": query("symbol", "AAPL", func(sym string) map[string]any {
			return map[string]any{"symbol": strings.ToUpper(sym), "price": 189.84, "change": 1.23, "changePercent": 0.65}
		}),
		"/api/data/crypto": query("symbol", "SOL", func(sym string) map[string]any {
			return map[string]any{"symbol": strings.ToUpper(sym), "price": 152.31, "change24h": 3.4, "marketCap": 71_000_000_000}
		}),
		"/api/data/news": query("topic", "crypto", func(topic string) map[string]any {
			return map[string]any{"topic": topic, "articles": []map[string]string{
				{"title": "Stablecoin payments cross a new milestone", "source": "Payless Wire"},
				{"title": "HTTP 402 makes a comeback", "source": "Payless Wire"},
			}}
		}),
		"/api/tools/qrcode": query("data", "https://payless.network", func(data string) map[string]any {
			return map[string]any{"data": data, "format": "png", "url": "https://qr.payless.network/?d=" + data}
		}),
		"/api/premium/content": query("topic", "x402", func(topic string) map[string]any {
			return map[string]any{"topic": topic, "content": "Premium research on " + topic}
		}),
	}
}

// mountTierRoutes registers the token-gated routes.
func mountTierRoutes(mux *http.ServeMux, p *payless.Payless) {
	gate := p.TokenGate()
	mux.Handle("/api/premium/holder-content", gate.Basic(holder("Verified Holder")))
	mux.Handle("/api/premium/pro-analytics", gate.Pro(holder("Pro")))
	mux.Handle("/api/premium/enterprise-reports", gate.Enterprise(holder("Enterprise")))
	mux.Handle("/api/public/sample", gate.Wrap(holder("Public"), middleware.AllowFree()))
}

func holder(access string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{
			"holder": map[string]string{
				"wallet":      r.Header.Get(types.HeaderWalletAddress),
				"tier":        w.Header().Get(types.HeaderTokenTier),
				"accessLevel": access,
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func ok(data map[string]any) (int, any) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return http.StatusOK, map[string]any{"success": true, "data": data}
}

func jsonBody(fn func(in map[string]any) (int, any)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "use POST", "")
			return
		}
		in := map[string]any{}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object", err.Error())
			return
		}
		status, body := fn(in)
		middleware.WriteJSON(w, status, body)
	})
}

func query(param, fallback string, fn func(string) map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := r.URL.Query().Get(param)
		if v == "" {
			v = fallback
		}
		status, body := ok(fn(v))
		middleware.WriteJSON(w, status, body)
	})
}
