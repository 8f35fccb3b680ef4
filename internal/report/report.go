// Package report renders advisory and portfolio state as Chinese
// markdown files under the configured reports directory.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/advisor"
	"github.com/athang/pixiu/internal/portfolio"
)

// Writer persists rendered reports into dir/YYYY-MM/ subdirectories.
type Writer struct {
	dir string
	log zerolog.Logger
	now func() time.Time
}

func NewWriter(dir string, log zerolog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With().Str("component", "report").Logger(),
		now: time.Now,
	}
}

var tmplFuncs = template.FuncMap{
	"money":   formatMoney,
	"pct":     func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) },
	"signpct": func(v float64) string { return fmt.Sprintf("%+.2f%%", v) },
	"nav":     func(v float64) string { return fmt.Sprintf("%.4f", v) },
	"confLabel": func(v float64) string {
		switch {
		case v > 0.7:
			return "高"
		case v > 0.4:
			return "中"
		default:
			return "低"
		}
	},
}

// formatMoney renders an RMB amount with thousands separators.
func formatMoney(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	var out []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out) + frac
	}
	return string(out) + frac
}

// Advisory renders the daily recommendation report and returns the
// saved file path.
func (w *Writer) Advisory(adv *advisor.Advisory) (string, error) {
	var buf bytes.Buffer
	if err := advisoryTmpl.Execute(&buf, advisoryView(adv, w.now())); err != nil {
		return "", fmt.Errorf("render advisory report: %w", err)
	}
	return w.save(buf.Bytes(), "recommendation")
}

// Portfolio renders the account state report and returns the saved
// file path.
func (w *Writer) Portfolio(acct portfolio.Account, funds map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := portfolioTmpl.Execute(&buf, portfolioView(acct, funds, w.now())); err != nil {
		return "", fmt.Errorf("render portfolio report: %w", err)
	}
	return w.save(buf.Bytes(), "portfolio")
}

func (w *Writer) save(content []byte, kind string) (string, error) {
	now := w.now()
	dir := filepath.Join(w.dir, now.Format("2006-01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.md", now.Format("20060102_1504"), kind))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	w.log.Info().Str("path", path).Msg("报告已保存")
	return path, nil
}
