package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/DenzelPenzel/ton-agent/sdk/go/tonagent"
)

// A stand-in server so the example runs without a wallet.
func demoServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/actions", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"tools": []tonagent.Tool{{
			Type: "function",
			Function: tonagent.ToolFunction{
				Name:        "get_wallet_details",
				Description: "Get details about the TON wallet.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
			},
		}}})
	})
	mux.HandleFunc("POST /api/v1/invocations", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(tonagent.Invocation{ID: "inv-demo", Action: "get_wallet_details", Status: tonagent.StatusPending})
	})
	mux.HandleFunc("GET /api/v1/invocations/inv-demo", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(tonagent.Invocation{
			ID:     "inv-demo",
			Action: "get_wallet_details",
			Status: tonagent.StatusSucceeded,
			Result: &tonagent.InvocationResult{Output: "Wallet Details:\n- Network: testnet", Network: "testnet"},
		})
	})
	return httptest.NewServer(mux)
}

func main() {
	srv := demoServer()
	defer srv.Close()

	client, err := tonagent.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}
	client.SetAPIKey("demo-key")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tools, err := client.Tools(ctx)
	if err != nil {
		panic(err)
	}
	for _, tool := range tools {
		fmt.Printf("tool %s: %s\n", tool.Function.Name, tool.Function.Description)
	}

	inv, err := client.Submit(ctx, tonagent.InvocationRequest{Action: "get_wallet_details"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted %s (status=%s)\n", inv.ID, inv.Status)

	done, err := client.Wait(ctx, inv.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s finished: %s\n", done.ID, done.Result.Output)
}
