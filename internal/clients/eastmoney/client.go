// Package eastmoney fetches Chinese fund and index data from the
// Eastmoney public endpoints. All calls pass through a shared rate
// limiter (the upstream throttles aggressive IPs) and a circuit
// breaker so a flapping endpoint degrades to the cached tier quickly.
package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/athang/pixiu/internal/domain"
)

const (
	fundNAVURL   = "https://api.fund.eastmoney.com/f10/lsjz"
	fundRefererr = "https://fundf10.eastmoney.com/"
	klineURL     = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	estimateURL  = "https://fundgz.1234567.com.cn/js/%s.js"
	navPageSize  = 49
)

type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger

	fundNAVBase  string
	klineBase    string
	estimateBase string
}

func New(log zerolog.Logger) *Client {
	settings := gobreaker.Settings{
		Name:     "eastmoney",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// One request per 800ms matches the upstream's tolerance for
		// sustained polling from a single IP.
		limiter:      rate.NewLimiter(rate.Every(800*time.Millisecond), 1),
		breaker:      gobreaker.NewCircuitBreaker(settings),
		log:          log.With().Str("component", "eastmoney").Logger(),
		fundNAVBase:  fundNAVURL,
		klineBase:    klineURL,
		estimateBase: estimateURL,
	}
}

func (c *Client) get(ctx context.Context, url, referer string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
		if referer != "" {
			req.Header.Set("Referer", referer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("eastmoney status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

type navListResponse struct {
	Data struct {
		LSJZList []struct {
			FSRQ  string `json:"FSRQ"`  // nav date
			DWJZ  string `json:"DWJZ"`  // unit nav
			LJJZ  string `json:"LJJZ"`  // accumulated nav
			JZZZL string `json:"JZZZL"` // daily growth pct
		} `json:"LSJZList"`
		TotalCount int `json:"TotalCount"`
	} `json:"Data"`
	ErrCode int `json:"ErrCode"`
}

// FundNAVHistory returns up to limit NAV rows for a fund, date
// ascending. The endpoint pages newest-first at 49 rows per page.
func (c *Client) FundNAVHistory(ctx context.Context, fundCode string, limit int) ([]domain.FundNAV, error) {
	if limit <= 0 {
		limit = 250
	}
	pages := (limit + navPageSize - 1) / navPageSize

	var out []domain.FundNAV
	for page := 1; page <= pages; page++ {
		url := fmt.Sprintf("%s?fundCode=%s&pageIndex=%d&pageSize=%d",
			c.fundNAVBase, fundCode, page, navPageSize)
		raw, err := c.get(ctx, url, fundRefererr)
		if err != nil {
			return nil, fmt.Errorf("fetch nav history %s: %w", fundCode, err)
		}

		var resp navListResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode nav history %s: %w", fundCode, err)
		}
		if resp.ErrCode != 0 {
			return nil, fmt.Errorf("nav history %s: upstream error %d", fundCode, resp.ErrCode)
		}
		if len(resp.Data.LSJZList) == 0 {
			break
		}

		for _, row := range resp.Data.LSJZList {
			nav, err := strconv.ParseFloat(row.DWJZ, 64)
			if err != nil {
				continue
			}
			rec := domain.FundNAV{FundCode: fundCode, Date: row.FSRQ, NAV: nav}
			if v, err := strconv.ParseFloat(row.LJJZ, 64); err == nil {
				rec.AccNAV = v
			}
			if v, err := strconv.ParseFloat(row.JZZZL, 64); err == nil {
				rec.DailyReturn = v
			}
			out = append(out, rec)
		}
		if len(out) >= resp.Data.TotalCount {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type klineResponse struct {
	Data struct {
		Code   string   `json:"code"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// secIDFor maps an index code to Eastmoney's market-prefixed id.
// Shanghai indices (000xxx) use market 1, Shenzhen (399xxx) market 0.
func secIDFor(indexCode string) string {
	if strings.HasPrefix(indexCode, "399") {
		return "0." + indexCode
	}
	return "1." + indexCode
}

// IndexDaily returns up to limit daily bars for an index, date
// ascending.
func (c *Client) IndexDaily(ctx context.Context, indexCode string, limit int) ([]domain.IndexBar, error) {
	if limit <= 0 {
		limit = 250
	}
	url := fmt.Sprintf("%s?secid=%s&klt=101&fqt=1&fields1=f1,f2,f3&fields2=f51,f52,f53,f54,f55,f56,f57&end=20500101&lmt=%d",
		c.klineBase, secIDFor(indexCode), limit)

	raw, err := c.get(ctx, url, "")
	if err != nil {
		return nil, fmt.Errorf("fetch index daily %s: %w", indexCode, err)
	}

	var resp klineResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode index daily %s: %w", indexCode, err)
	}

	out := make([]domain.IndexBar, 0, len(resp.Data.Klines))
	for _, line := range resp.Data.Klines {
		// date,open,close,high,low,volume,amount
		fields := strings.Split(line, ",")
		if len(fields) < 7 {
			continue
		}
		bar := domain.IndexBar{IndexCode: indexCode, Date: fields[0]}
		bar.Open = parseF(fields[1])
		bar.Close = parseF(fields[2])
		bar.High = parseF(fields[3])
		bar.Low = parseF(fields[4])
		bar.Volume = parseF(fields[5])
		bar.Amount = parseF(fields[6])
		if bar.Close == 0 {
			continue
		}
		out = append(out, bar)
	}
	return out, nil
}

// Estimate is the intraday NAV estimate published for open-end funds.
type Estimate struct {
	FundCode    string  `json:"fundcode"`
	Name        string  `json:"name"`
	NAV         float64 `json:"-"`
	EstimateNAV float64 `json:"-"`
	EstimatePct float64 `json:"-"`
	Time        string  `json:"gztime"`
}

// FundEstimate fetches the realtime valuation estimate. The endpoint
// wraps JSON in a jsonpgz(...) callback.
func (c *Client) FundEstimate(ctx context.Context, fundCode string) (*Estimate, error) {
	raw, err := c.get(ctx, fmt.Sprintf(c.estimateBase, fundCode), "")
	if err != nil {
		return nil, fmt.Errorf("fetch estimate %s: %w", fundCode, err)
	}

	text := strings.TrimSpace(string(raw))
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("estimate %s: unexpected payload", fundCode)
	}

	var payload struct {
		FundCode string `json:"fundcode"`
		Name     string `json:"name"`
		DWJZ     string `json:"dwjz"`
		GSZ      string `json:"gsz"`
		GSZZL    string `json:"gszzl"`
		GZTime   string `json:"gztime"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("decode estimate %s: %w", fundCode, err)
	}

	return &Estimate{
		FundCode:    payload.FundCode,
		Name:        payload.Name,
		NAV:         parseF(payload.DWJZ),
		EstimateNAV: parseF(payload.GSZ),
		EstimatePct: parseF(payload.GSZZL),
		Time:        payload.GZTime,
	}, nil
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}
