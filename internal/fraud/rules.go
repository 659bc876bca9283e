package fraud

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/JaimeStill/arbiter/internal/evidence"
)

const earthRadiusMiles = 3958.8

// DistanceRule flags a shipping geocode far from the session geocode.
type DistanceRule struct {
	ThresholdMiles float64
}

func (DistanceRule) Kind() Kind { return KindDistanceDiscrepancy }

func (r DistanceRule) Evaluate(in Input) RedFlag {
	fields := []string{"facts.order.shipping_geo", "facts.session.geo"}
	ev := in.Evidence

	if !ev.Known(evidence.SectionOrder) || !ev.Known(evidence.SectionSession) {
		return unknown(fields, "order or session evidence unavailable")
	}

	order, session := ev.Facts.Order, ev.Facts.Session
	if order == nil || order.ShippingGeo == nil {
		return unknown(fields, "shipping geocode missing")
	}
	if session == nil || session.Geo == nil {
		return unknown(fields, "session geocode missing")
	}

	miles := Haversine(*order.ShippingGeo, *session.Geo)
	flag := RedFlag{
		Value:     SignalFalse,
		Magnitude: miles,
		Fields:    fields,
		Refs:      []string{order.ID, session.ID},
		Detail:    fmt.Sprintf("shipping and session locations %.1f miles apart (threshold %.0f)", miles, r.ThresholdMiles),
	}
	if miles > r.ThresholdMiles {
		flag.Value = SignalTrue
	}
	return flag
}

// VelocityRule flags more refunds inside the trailing window than Threshold,
// counting the current request when it would itself produce a refund.
type VelocityRule struct {
	Threshold int
	Window    time.Duration
}

func (VelocityRule) Kind() Kind { return KindRefundVelocity }

func (r VelocityRule) Evaluate(in Input) RedFlag {
	fields := []string{"facts.refund_history"}

	if !in.Evidence.Known(evidence.SectionRefundHistory) {
		return unknown(fields, "refund history unavailable")
	}

	from := in.AsOf.Add(-r.Window)
	var refs []string
	for _, refund := range in.Evidence.Facts.RefundHistory {
		if refund.CreatedAt.Before(from) || refund.CreatedAt.After(in.AsOf) {
			continue
		}
		refs = append(refs, refund.ID)
	}

	count := len(refs)
	if in.Request != nil && in.Request.IsRefund() {
		count++
	}
	slices.Sort(refs)

	flag := RedFlag{
		Value:     SignalFalse,
		Magnitude: float64(count),
		Fields:    fields,
		Refs:      refs,
		Detail:    fmt.Sprintf("%d refunds in trailing %s (threshold %d)", count, r.Window, r.Threshold),
	}
	if count > r.Threshold {
		flag.Value = SignalTrue
	}
	return flag
}

// ChargebackRule flags any pending or open chargeback regardless of age.
type ChargebackRule struct{}

func (ChargebackRule) Kind() Kind { return KindChargebackRisk }

func (ChargebackRule) Evaluate(in Input) RedFlag {
	fields := []string{"facts.chargebacks"}

	if !in.Evidence.Known(evidence.SectionChargebacks) {
		return unknown(fields, "chargeback history unavailable")
	}

	var refs []string
	for _, cb := range in.Evidence.Facts.Chargebacks {
		switch strings.ToLower(strings.TrimSpace(cb.Status)) {
		case "pending", "open":
			refs = append(refs, cb.ID)
		}
	}
	slices.Sort(refs)

	if len(refs) == 0 {
		return RedFlag{
			Value:  SignalFalse,
			Fields: fields,
			Detail: "no open chargebacks",
		}
	}

	return RedFlag{
		Value:     SignalTrue,
		Magnitude: float64(len(refs)),
		Fields:    fields,
		Refs:      refs,
		Detail:    fmt.Sprintf("open chargebacks: %s", strings.Join(refs, ", ")),
	}
}

// Haversine returns the great-circle distance between a and b in miles.
func Haversine(a, b evidence.Geo) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func unknown(fields []string, detail string) RedFlag {
	return RedFlag{
		Value:  SignalUnknown,
		Fields: fields,
		Detail: detail,
	}
}
