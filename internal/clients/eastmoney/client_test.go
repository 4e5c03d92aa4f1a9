package eastmoney

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bobmcallan/fundback/internal/interfaces"
)

func navTablePage(rows string, records, pages, curpage int) string {
	content := fmt.Sprintf(`<table class='w782 comm lsjz'><thead><tr><th>净值日期</th><th>单位净值</th><th>累计净值</th><th>日增长率</th><th>申购状态</th><th>赎回状态</th><th>分红送配</th></tr></thead><tbody>%s</tbody></table>`, rows)
	return fmt.Sprintf(`var apidata={ content:"%s",records:%d,pages:%d,curpage:%d};`, content, records, pages, curpage)
}

func navRow(date, unit, cumulative, growth, purchase, redeem, dividend string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td class='tor bold'>%s</td><td class='tor bold'>%s</td><td class='tor bold grn'>%s</td><td>%s</td><td>%s</td><td class='red unbold'>%s</td></tr>`,
		date, unit, cumulative, growth, purchase, redeem, dividend)
}

func TestGetNAVHistory_SinglePage(t *testing.T) {
	rows := navRow("2024-01-03", "1.2340", "2.1000", "0.53%", "开放申购", "开放赎回", "") +
		navRow("2024-01-02", "1.2275", "2.0935", "-0.12%", "开放申购", "开放赎回", "每份派现金0.0500元")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "lsjz" {
			t.Errorf("type = %q, want lsjz", got)
		}
		if got := r.URL.Query().Get("code"); got != "210014" {
			t.Errorf("code = %q, want 210014", got)
		}
		fmt.Fprint(w, navTablePage(rows, 2, 1, 1))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	records, err := client.GetNAVHistory(context.Background(), "210014")
	if err != nil {
		t.Fatalf("GetNAVHistory failed: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// Ascending by date regardless of the newest-first page order.
	first := records[0]
	if !first.Date.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first date = %s, want 2024-01-02", first.Date.Format("2006-01-02"))
	}
	if first.UnitNAV != 1.2275 {
		t.Errorf("unit NAV = %.4f, want 1.2275", first.UnitNAV)
	}
	if first.DailyGrowthPct != -0.12 {
		t.Errorf("growth = %.2f, want -0.12", first.DailyGrowthPct)
	}
	if first.DividendRaw != "每份派现金0.0500元" {
		t.Errorf("dividend = %q", first.DividendRaw)
	}

	second := records[1]
	if second.CumulativeNAV != 2.1000 {
		t.Errorf("cumulative NAV = %.4f, want 2.1000", second.CumulativeNAV)
	}
	if second.PurchaseStatus != "开放申购" {
		t.Errorf("purchase status = %q", second.PurchaseStatus)
	}
}

func TestGetNAVHistory_Paginated(t *testing.T) {
	pageRows := map[string]string{
		"1": navRow("2024-01-04", "1.10", "1.10", "0.00%", "开放申购", "开放赎回", ""),
		"2": navRow("2024-01-03", "1.05", "1.05", "0.00%", "开放申购", "开放赎回", ""),
		"3": navRow("2024-01-02", "1.00", "1.00", "0.00%", "暂停申购", "开放赎回", ""),
	}

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page := r.URL.Query().Get("page")
		fmt.Fprint(w, navTablePage(pageRows[page], 3, 3, 1))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	records, err := client.GetNAVHistory(context.Background(), "110022")
	if err != nil {
		t.Fatalf("GetNAVHistory failed: %v", err)
	}

	if requests != 3 {
		t.Errorf("expected 3 page requests, got %d", requests)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].PurchaseStatus != "暂停申购" {
		t.Errorf("oldest record purchase status = %q, want 暂停申购", records[0].PurchaseStatus)
	}
}

func TestGetNAVHistory_DateRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sdate"); got != "2024-01-01" {
			t.Errorf("sdate = %q, want 2024-01-01", got)
		}
		if got := r.URL.Query().Get("edate"); got != "2024-06-30" {
			t.Errorf("edate = %q, want 2024-06-30", got)
		}
		fmt.Fprint(w, navTablePage("", 0, 1, 1))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	records, err := client.GetNAVHistory(context.Background(), "210014", interfaces.WithDateRange(from, to))
	if err != nil {
		t.Fatalf("GetNAVHistory failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestGetNAVHistory_InvalidCode(t *testing.T) {
	client := NewClient()
	if _, err := client.GetNAVHistory(context.Background(), "21001"); err == nil {
		t.Fatal("expected error for 5-digit code")
	}
	if _, err := client.GetNAVHistory(context.Background(), "abc123"); err == nil {
		t.Fatal("expected error for non-numeric code")
	}
}

func TestGetNAVHistory_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	if _, err := client.GetNAVHistory(context.Background(), "210014"); err == nil {
		t.Fatal("expected error for response without apidata payload")
	}
}

func TestGetNAVHistory_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := client.GetNAVHistory(context.Background(), "210014")
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestParseNAVRow_RejectsHeaderAndPlaceholder(t *testing.T) {
	if _, ok := parseNAVRow(`<th>净值日期</th><th>单位净值</th>`); ok {
		t.Error("header row should be rejected")
	}
	if _, ok := parseNAVRow(`<td>not-a-date</td><td>1.0</td><td>1.0</td><td>0.00%</td>`); ok {
		t.Error("row without parsable date should be rejected")
	}

	record, ok := parseNAVRow(`<td>2024-01-02</td><td></td><td>---</td><td>--</td><td>开放申购</td><td>开放赎回</td><td></td>`)
	if !ok {
		t.Fatal("placeholder cells should still parse")
	}
	if record.UnitNAV != 0 || record.CumulativeNAV != 0 || record.DailyGrowthPct != 0 {
		t.Errorf("placeholder cells should parse as 0, got %+v", record)
	}
}

func TestGetFundFees(t *testing.T) {
	page := `<html><body>
	<div class="boxitem w790">
	<label>管理费率</label><span>1.50%（每年）</span>
	<label>托管费率</label><span>0.25%（每年）</span>
	<label>销售服务费率</label><span>0.00%（每年）</span>
	</div>
	<div>申购费率（前端）</div>
	<table><tr><th>适用金额</th><th>费率</th></tr>
	<tr><td>小于100万元</td><td>1.50%</td></tr>
	<tr><td>大于等于100万元，小于500万元</td><td>1.20%</td></tr>
	</table>
	<div>赎回费率</div>
	<table><tr><th>适用期限</th><th>费率</th></tr>
	<tr><td>小于7天</td><td>1.50%</td></tr>
	<tr><td>大于等于7天，小于1年</td><td>0.50%</td></tr>
	<tr><td>大于等于1年</td><td>0.00%</td></tr>
	</table>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jjfl_210014.html" {
			t.Errorf("path = %q, want /jjfl_210014.html", r.URL.Path)
		}
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	client := NewClient(WithFeeBaseURL(srv.URL), WithRateLimit(1000))
	fees, err := client.GetFundFees(context.Background(), "210014")
	if err != nil {
		t.Fatalf("GetFundFees failed: %v", err)
	}

	if fees.ManagementPct != 1.50 {
		t.Errorf("management = %.2f, want 1.50", fees.ManagementPct)
	}
	if fees.CustodyPct != 0.25 {
		t.Errorf("custody = %.2f, want 0.25", fees.CustodyPct)
	}
	if fees.SalesServicePct != 0.00 {
		t.Errorf("sales service = %.2f, want 0.00", fees.SalesServicePct)
	}
	if len(fees.SubscriptionTiers) != 2 {
		t.Fatalf("expected 2 subscription tiers, got %d", len(fees.SubscriptionTiers))
	}
	if len(fees.RedemptionTiers) != 3 {
		t.Fatalf("expected 3 redemption tiers, got %d", len(fees.RedemptionTiers))
	}
	last := fees.RedemptionTiers[2]
	if last.Condition != "大于等于1年" || last.RatePct != 0.00 {
		t.Errorf("last redemption tier = %+v", last)
	}
	if fees.LastUpdated.IsZero() {
		t.Error("LastUpdated should be set")
	}
}
