// Command ingest-questions seeds the knowledge base from CSV files by calling
// the chat API with proper authentication.
//
// The questions CSV has a header row and three columns: name, content, links.
// The links column is optional JSON of the form {"display name": "url"}.
// The links CSV has a header row and two columns: name, url.
//
// Usage:
//
//	go run ./scripts/ingest-questions -questions questions.csv -api-url http://localhost:8880 -api-key YOUR_API_KEY
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type config struct {
	QuestionsPath string
	LinksPath     string
	APIBaseURL    string
	APIKey        string
	DelayMS       int
	DryRun        bool
}

type questionRequest struct {
	Name    string            `json:"name"`
	Content string            `json:"content"`
	Links   map[string]string `json:"links,omitempty"`
}

type linkRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type stats struct {
	TotalRows  int
	Skipped    int
	Created    int
	Duplicates int
	Failed     int
}

func (s *stats) add(other stats) {
	s.TotalRows += other.TotalRows
	s.Skipped += other.Skipped
	s.Created += other.Created
	s.Duplicates += other.Duplicates
	s.Failed += other.Failed
}

func main() {
	cfg := parseFlags()

	if cfg.QuestionsPath == "" && cfg.LinksPath == "" {
		fmt.Println("Error: at least one of -questions or -links is required")
		flag.Usage()
		os.Exit(1)
	}

	if cfg.APIKey == "" {
		fmt.Println("Error: -api-key is required")
		flag.Usage()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var total stats

	if cfg.QuestionsPath != "" {
		fmt.Printf("Ingesting questions from %s\n", cfg.QuestionsPath)
		total.add(ingestCSV(client, cfg, cfg.QuestionsPath, postQuestion))
	}

	if cfg.LinksPath != "" {
		fmt.Printf("Ingesting links from %s\n", cfg.LinksPath)
		total.add(ingestCSV(client, cfg, cfg.LinksPath, postLink))
	}

	fmt.Println()
	fmt.Println("Summary")
	fmt.Printf("  Total rows:  %d\n", total.TotalRows)
	fmt.Printf("  Created:     %d\n", total.Created)
	fmt.Printf("  Duplicates:  %d\n", total.Duplicates)
	fmt.Printf("  Skipped:     %d\n", total.Skipped)
	fmt.Printf("  Failed:      %d\n", total.Failed)

	if total.Failed > 0 {
		os.Exit(1)
	}
}

func parseFlags() config {
	cfg := config{}

	flag.StringVar(&cfg.QuestionsPath, "questions", "", "Path to questions CSV (name,content,links)")
	flag.StringVar(&cfg.LinksPath, "links", "", "Path to links CSV (name,url)")
	flag.StringVar(&cfg.APIBaseURL, "api-url", "http://localhost:8880", "Chat API base URL")
	flag.StringVar(&cfg.APIKey, "api-key", "", "API key for authentication (required)")
	flag.IntVar(&cfg.DelayMS, "delay", 100, "Delay in milliseconds between API calls")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Parse CSV but don't make API calls")

	flag.Parse()

	return cfg
}

// rowPoster posts one parsed CSV row. It reports the row's name, whether the
// row was usable, and the request error if any.
type rowPoster func(client *http.Client, cfg config, row []string) (name string, ok bool, err error)

func ingestCSV(client *http.Client, cfg config, path string, post rowPoster) stats {
	var s stats

	file, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		fmt.Printf("Error reading header: %v\n", err)
		os.Exit(1)
	}

	rowNum := 1

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			fmt.Printf("  ! Row %d: %v\n", rowNum, err)
			s.Failed++
			rowNum++

			continue
		}

		s.TotalRows++

		if cfg.DryRun {
			fmt.Printf("  [DRY] Row %d: %s\n", rowNum, safeGet(row, 0))
			s.Created++
			rowNum++

			continue
		}

		name, ok, err := post(client, cfg, row)

		switch {
		case !ok:
			s.Skipped++
		case err == nil:
			fmt.Printf("  + Row %d: %s\n", rowNum, name)
			s.Created++
		case isConflict(err):
			fmt.Printf("  = Row %d: %s already exists\n", rowNum, name)
			s.Duplicates++
		default:
			fmt.Printf("  ! Row %d (%s): %v\n", rowNum, name, err)
			s.Failed++
		}

		time.Sleep(time.Duration(cfg.DelayMS) * time.Millisecond)
		rowNum++
	}

	return s
}

func postQuestion(client *http.Client, cfg config, row []string) (string, bool, error) {
	name := strings.TrimSpace(safeGet(row, 0))
	content := strings.TrimSpace(safeGet(row, 1))

	if name == "" || content == "" {
		return name, false, nil
	}

	req := questionRequest{Name: name, Content: content}

	if linksJSON := strings.TrimSpace(safeGet(row, 2)); linksJSON != "" {
		if err := json.Unmarshal([]byte(linksJSON), &req.Links); err != nil {
			return name, true, fmt.Errorf("parse links column: %w", err)
		}
	}

	return name, true, postJSON(client, cfg, "/questions/create", req)
}

func postLink(client *http.Client, cfg config, row []string) (string, bool, error) {
	name := strings.TrimSpace(safeGet(row, 0))
	url := strings.TrimSpace(safeGet(row, 1))

	if name == "" || url == "" {
		return name, false, nil
	}

	return name, true, postJSON(client, cfg, "/links/create", linkRequest{Name: name, URL: url})
}

// conflictError marks a 409 so duplicates can be counted instead of failing the run.
type conflictError struct{ body string }

func (e *conflictError) Error() string { return "conflict: " + e.body }

func isConflict(err error) bool {
	var conflict *conflictError

	return errors.As(err, &conflict)
}

func postJSON(client *http.Client, cfg config, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, cfg.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusConflict {
		respBody, _ := io.ReadAll(resp.Body)

		return &conflictError{body: string(respBody)}
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func safeGet(row []string, index int) string {
	if index >= 0 && index < len(row) {
		return row[index]
	}

	return ""
}
