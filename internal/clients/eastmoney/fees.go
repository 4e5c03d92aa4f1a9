package eastmoney

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/fundback/internal/models"
)

var (
	managementPattern   = regexp.MustCompile(`管理费率[^\d]*?([\d.]+)%`)
	custodyPattern      = regexp.MustCompile(`托管费率[^\d]*?([\d.]+)%`)
	salesServicePattern = regexp.MustCompile(`销售服务费率[^\d]*?([\d.]+)%`)
)

// GetFundFees retrieves and parses the published fee page for a fund. The
// page is plain server-rendered HTML; the three annual rates are scraped by
// label, and the tiered subscription and redemption tables by section.
func (c *Client) GetFundFees(ctx context.Context, code string) (*models.FundFees, error) {
	if !models.FundCodePattern.MatchString(code) {
		return nil, fmt.Errorf("invalid fund code %q", code)
	}

	pageURL := fmt.Sprintf("%s/jjfl_%s.html", c.feeBaseURL, code)
	body, err := c.get(ctx, pageURL, c.feeBaseURL+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fee page for %s: %w", code, err)
	}

	page := html.UnescapeString(string(body))
	fees := &models.FundFees{
		Code:              code,
		ManagementPct:     matchRate(managementPattern, page),
		CustodyPct:        matchRate(custodyPattern, page),
		SalesServicePct:   matchRate(salesServicePattern, page),
		SubscriptionTiers: parseTierSection(page, "申购费率"),
		RedemptionTiers:   parseTierSection(page, "赎回费率"),
		LastUpdated:       time.Now().UTC(),
	}

	c.logger.Info().
		Str("code", code).
		Float64("management_pct", fees.ManagementPct).
		Float64("custody_pct", fees.CustodyPct).
		Msg("Fund fees downloaded")

	return fees, nil
}

func matchRate(pattern *regexp.Regexp, page string) float64 {
	m := pattern.FindStringSubmatch(page)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

// parseTierSection extracts the tier table following a section label. Each
// qualifying row pairs a condition cell (amount bracket or holding period)
// with a percentage cell.
func parseTierSection(page, label string) []models.FeeTier {
	idx := strings.Index(page, label)
	if idx < 0 {
		return nil
	}
	section := page[idx:]
	if end := strings.Index(section, "</table>"); end >= 0 {
		section = section[:end]
	}

	var tiers []models.FeeTier
	for _, row := range rowPattern.FindAllStringSubmatch(section, -1) {
		cells := cellPattern.FindAllStringSubmatch(row[1], -1)
		if len(cells) < 2 {
			continue
		}

		var condition string
		var rate float64
		var found bool
		for _, cell := range cells {
			text := strings.TrimSpace(tagPattern.ReplaceAllString(cell[1], ""))
			if strings.HasSuffix(text, "%") {
				v, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
				if err == nil {
					rate = v
					found = true
				}
				continue
			}
			if text != "" && condition == "" {
				condition = text
			}
		}
		if found && condition != "" {
			tiers = append(tiers, models.FeeTier{Condition: condition, RatePct: rate})
		}
	}
	return tiers
}
