// Benchmark tool for testing Kestrel against labeled mule-account data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/transfers.csv -labels /path/to/labels.csv -url http://localhost:8080
//
// This tool:
//   1. Reads transfer data plus a per-account mule label file
//   2. Submits the transfers to Kestrel as analysis batches
//   3. Compares Kestrel's flagged accounts with the actual mule labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// TransferRow represents a row from the transfer CSV.
type TransferRow struct {
	ID        string  `json:"id"`
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
}

// BatchRequest is the Kestrel API request format.
type BatchRequest struct {
	Transfers []TransferRow `json:"transfers"`
}

// AnalysisResponse is the subset of the Kestrel API response the
// benchmark needs.
type AnalysisResponse struct {
	ID                 string `json:"id"`
	SuspiciousAccounts []struct {
		AccountID        string   `json:"accountId"`
		SuspicionScore   float64  `json:"suspicionScore"`
		DetectedPatterns []string `json:"detectedPatterns"`
		RingID           string   `json:"ringId"`
	} `json:"suspiciousAccounts"`
	FraudRings []struct {
		RingID      string  `json:"ringId"`
		PatternType string  `json:"patternType"`
		RiskScore   float64 `json:"riskScore"`
	} `json:"fraudRings"`
	Summary struct {
		TotalAccountsAnalyzed     int   `json:"totalAccountsAnalyzed"`
		SuspiciousAccountsFlagged int   `json:"suspiciousAccountsFlagged"`
		FraudRingsDetected        int   `json:"fraudRingsDetected"`
		ProcessingMs              int64 `json:"processingMs"`
	} `json:"summary"`
}

// Metrics tracks benchmark results at account granularity.
type Metrics struct {
	TruePositives  int // Mule flagged as suspicious
	FalsePositives int // Clean account flagged as suspicious
	TrueNegatives  int // Clean account not flagged
	FalseNegatives int // Mule not flagged (missed!)

	TotalAccounts int
	TotalMules    int
	TotalClean    int
	RingsDetected int

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to transfer CSV file (id,sender,receiver,amount,timestamp)")
	labelsPath := flag.String("labels", "", "Path to account label CSV file (account_id,is_mule)")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	batchSize := flag.Int("batch-size", 50000, "Transfers per submitted batch (0 = single batch)")
	limit := flag.Int("limit", 0, "Maximum transfers to process (0 = all)")
	verbose := flag.Bool("verbose", false, "Print each flagged account")
	flag.Parse()

	if *csvPath == "" || *labelsPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/transfers.csv -labels /path/to/labels.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         KESTREL BENCHMARK - Mule Account Detection            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nTransfers:   %s\n", *csvPath)
	fmt.Printf("Labels:      %s\n", *labelsPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Batch Size:  %d\n", *batchSize)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read transfer data
	fmt.Printf("\nReading transfers from %s...\n", *csvPath)
	transfers, err := readTransferCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read transfers: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transfers\n", len(transfers))

	// Read labels
	labels, err := readLabelCSV(*labelsPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to read labels: %v\n", err)
		os.Exit(1)
	}
	muleCount := 0
	for _, isMule := range labels {
		if isMule {
			muleCount++
		}
	}
	fmt.Printf("✓ Loaded %d account labels (%d mules)\n", len(labels), muleCount)

	// Run benchmark
	fmt.Println("\nSubmitting batches...")
	startTime := time.Now()
	metrics, err := runBenchmark(transfers, labels, *baseURL, *tenantID, *batchSize, *verbose)
	if err != nil {
		fmt.Printf("ERROR: benchmark failed: %v\n", err)
		os.Exit(1)
	}
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readTransferCSV(path string, limit int) ([]TransferRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"id", "sender", "receiver", "amount", "timestamp"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var transfers []TransferRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := strconv.ParseFloat(record[colIndex["amount"]], 64)
		if err != nil {
			continue
		}

		transfers = append(transfers, TransferRow{
			ID:        record[colIndex["id"]],
			Sender:    record[colIndex["sender"]],
			Receiver:  record[colIndex["receiver"]],
			Amount:    amount,
			Timestamp: record[colIndex["timestamp"]],
		})

		if limit > 0 && len(transfers) >= limit {
			break
		}
	}

	return transfers, nil
}

func readLabelCSV(path string) (map[string]bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	accountCol, ok := colIndex["account_id"]
	if !ok {
		return nil, fmt.Errorf("missing column %q", "account_id")
	}
	muleCol, ok := colIndex["is_mule"]
	if !ok {
		return nil, fmt.Errorf("missing column %q", "is_mule")
	}

	labels := make(map[string]bool)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		labels[record[accountCol]] = record[muleCol] == "1" || strings.EqualFold(record[muleCol], "true")
	}

	return labels, nil
}

func runBenchmark(transfers []TransferRow, labels map[string]bool, baseURL, tenantID string, batchSize int, verbose bool) (*Metrics, error) {
	metrics := &Metrics{}
	client := &http.Client{Timeout: 5 * time.Minute}

	flagged := make(map[string]bool)
	seen := make(map[string]bool)

	if batchSize <= 0 {
		batchSize = len(transfers)
	}

	for offset := 0; offset < len(transfers); offset += batchSize {
		end := offset + batchSize
		if end > len(transfers) {
			end = len(transfers)
		}

		result, err := submitBatch(client, baseURL, tenantID, transfers[offset:end])
		if err != nil {
			return nil, fmt.Errorf("batch at offset %d: %w", offset, err)
		}

		metrics.ProcessingTimeMs += result.Summary.ProcessingMs
		metrics.RingsDetected += result.Summary.FraudRingsDetected

		for _, acct := range result.SuspiciousAccounts {
			flagged[acct.AccountID] = true
			if verbose {
				fmt.Printf("  FLAGGED %-16s | Score: %5.1f | Ring: %s | Patterns: %s\n",
					acct.AccountID,
					acct.SuspicionScore,
					acct.RingID,
					strings.Join(acct.DetectedPatterns, ","),
				)
			}
		}

		fmt.Printf("  ✓ Batch %d-%d: %d accounts, %d flagged, %d rings (%d ms)\n",
			offset, end,
			result.Summary.TotalAccountsAnalyzed,
			result.Summary.SuspiciousAccountsFlagged,
			result.Summary.FraudRingsDetected,
			result.Summary.ProcessingMs,
		)
	}

	// Every account that appears in the transfers participates in scoring.
	for _, tx := range transfers {
		seen[tx.Sender] = true
		seen[tx.Receiver] = true
	}

	for account := range seen {
		isMule := labels[account]
		isFlagged := flagged[account]

		metrics.TotalAccounts++
		if isMule {
			metrics.TotalMules++
		} else {
			metrics.TotalClean++
		}

		switch {
		case isFlagged && isMule:
			metrics.TruePositives++
		case isFlagged && !isMule:
			metrics.FalsePositives++
		case !isFlagged && !isMule:
			metrics.TrueNegatives++
		default: // !isFlagged && isMule
			metrics.FalseNegatives++
		}
	}

	return metrics, nil
}

func submitBatch(client *http.Client, baseURL, tenantID string, transfers []TransferRow) (*AnalysisResponse, error) {
	body, err := json.Marshal(BatchRequest{Transfers: transfers})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Accounts:   %d\n", m.TotalAccounts)
	fmt.Printf("   Labeled Mules:    %d\n", m.TotalMules)
	fmt.Printf("   Clean Accounts:   %d\n", m.TotalClean)
	fmt.Printf("   Rings Detected:   %d\n", m.RingsDetected)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  FLAGGED     CLEAN")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  M  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           C  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged accounts, how many were actual mules)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of mules, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalMules > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalMules) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalMules) * 100
		fmt.Printf("   Mules Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalMules, detectionRate)
		fmt.Printf("   Mules Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalMules, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   Engine Time:      %d ms\n", m.ProcessingTimeMs)
	if m.TotalAccounts > 0 && duration.Seconds() > 0 {
		aps := float64(m.TotalAccounts) / duration.Seconds()
		fmt.Printf("   Throughput:       %.2f accounts/sec\n", aps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most mule accounts")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some mules")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant mule activity being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most mule accounts are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
