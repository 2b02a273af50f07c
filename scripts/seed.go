// Seed script for creating demo data in Credence.
// Run with: go run ./scripts/seed.go
//
// Seeds through the HTTP API so it works against any store backend and
// claims get embedded and validated on the way in. The server must be
// running first.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment
	envFile := os.Getenv("CREDENCE_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	baseURL := os.Getenv("CREDENCE_URL")
	if baseURL == "" {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		baseURL = "http://localhost:" + port
	}

	if _, err := httpGet(baseURL + "/health"); err != nil {
		log.Fatalf("Server not reachable at %s: %v", baseURL, err)
	}
	fmt.Printf("Connected to %s\n", baseURL)

	claims := []struct {
		namespace  string
		subject    string
		predicate  string
		object     string
		lower      float64
		upper      float64
		tier       string
		source     string
		sourceType string
	}{
		{"project/checkout", "service:checkout", "written_in", "lang:go", 0.85, 0.95, "project", "repo-scan", "extraction"},
		{"project/checkout", "service:checkout", "depends_on", "service:payments", 0.7, 0.9, "project", "trace-analysis", "extraction"},
		{"project/checkout", "service:checkout", "owned_by", "team:commerce", 0.8, 0.95, "permanent", "org-chart", "user"},
		{"project/checkout", "service:payments", "rate_limited_at", "limit:100rps", 0.6, 0.8, "task", "conversation:2026-08-18", "user"},
		{"infra/cache", "service:checkout", "caches_sessions_in", "store:redis", 0.65, 0.85, "task", "config-scan", "extraction"},
		{"infra/cache", "store:redis", "deployed_on", "cluster:cache-01", 0.75, 0.9, "project", "inventory", "extraction"},
		{"team/commerce", "team:commerce", "prefers", "style:table-driven-tests", 0.7, 0.85, "project", "code-review:4412", "synthesis"},
		{"team/commerce", "team:commerce", "deploys_on", "day:tuesday", 0.5, 0.7, "task", "conversation:2026-08-15", "user"},
	}

	ids := make(map[string]string)
	for _, c := range claims {
		body := map[string]any{
			"namespace":  c.namespace,
			"subject":    c.subject,
			"predicate":  c.predicate,
			"object":     c.object,
			"confidence": map[string]float64{"lower": c.lower, "upper": c.upper},
			"tier":       c.tier,
			"provenance": []map[string]string{
				{"source": c.source, "source_type": c.sourceType},
			},
		}

		resp, err := httpPost(baseURL+"/v1/claims", body)
		if err != nil {
			log.Printf("Warning: failed to assert claim: %v", err)
			continue
		}

		var created struct {
			ID string `json:"id"`
		}
		json.Unmarshal(resp, &created)
		key := c.subject + " " + c.predicate + " " + c.object
		ids[key] = created.ID
		fmt.Printf("Asserted [%s] %s\n", c.tier, truncate(key, 60))
	}

	relationships := []struct {
		from     string
		to       string
		relType  string
		strength float64
	}{
		{"service:checkout depends_on service:payments", "service:checkout caches_sessions_in store:redis", "supports", 0.6},
		{"store:redis deployed_on cluster:cache-01", "service:checkout caches_sessions_in store:redis", "supports", 0.7},
		{"service:checkout written_in lang:go", "team:commerce prefers style:table-driven-tests", "references", 0.5},
	}

	for _, r := range relationships {
		from, ok := ids[r.from]
		if !ok {
			continue
		}
		to, ok := ids[r.to]
		if !ok {
			continue
		}

		_, err := httpPost(baseURL+"/v1/relationships", map[string]any{
			"from_claim": from, "to_claim": to, "type": r.relType, "strength": r.strength,
		})
		if err != nil {
			log.Printf("Warning: failed to add relationship: %v", err)
			continue
		}
		fmt.Printf("Linked (%s): %s -> %s\n", r.relType, truncate(r.from, 40), truncate(r.to, 40))
	}

	fmt.Println()
	fmt.Printf("Seeded %d claims and %d relationships\n", len(ids), len(relationships))
	fmt.Println("Try: curl " + baseURL + "/v1/claims?namespace=project/checkout")
}

func httpPost(url string, body any) ([]byte, error) {
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(result))
	}
	return result, nil
}

func httpGet(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(result))
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
