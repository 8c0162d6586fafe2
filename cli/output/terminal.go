package output

import (
	"fmt"
	"sort"
	"time"

	"github.com/jgoldverg/grover-tftp/backend/filesystem"
	"github.com/pterm/pterm"
)

func humanizeSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatRate(bytes int64, elapsed time.Duration) string {
	if elapsed <= 0 || bytes <= 0 {
		return "-"
	}
	perSec := float64(bytes) / elapsed.Seconds()
	return humanizeSize(uint64(perSec)) + "/s"
}

// PrintFileTable lists the files a root would serve.
func PrintFileTable(files []filesystem.FileInfo) error {
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	tableData := [][]string{
		{"Name", "Size"},
	}
	for _, f := range files {
		tableData = append(tableData, []string{f.ID, humanizeSize(f.Size)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
}

// PrintSettings renders key/value pairs as a two-column table.
func PrintSettings(title string, settings map[string]any) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tableData := [][]string{{"Key", "Value"}}
	for _, k := range keys {
		tableData = append(tableData, []string{k, fmt.Sprintf("%v", settings[k])})
	}
	pterm.DefaultSection.Println(title)
	return pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
}
