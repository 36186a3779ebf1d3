package feed

import "math"

// ComputeStats derives rolling rates from samples ordered newest first.
// The span is the time between the newest and oldest sample; an empty
// window or a non-positive span yields zero rates.
func ComputeStats(samples []Sample) Stats {
	if len(samples) == 0 {
		return Stats{}
	}

	span := samples[0].Timestamp.Sub(samples[len(samples)-1].Timestamp).Seconds()
	if span <= 0 {
		return Stats{}
	}

	var items, confirmed int
	for _, s := range samples {
		items += s.ItemCount
		confirmed += s.ConfirmedCount
	}

	ips := float64(items) / span
	cps := float64(confirmed) / span

	var rate float64
	if ips > 0 {
		rate = cps / ips * 100
	}

	return Stats{
		ItemsPerSecond:          round2(ips),
		ConfirmedItemsPerSecond: round2(cps),
		ConfirmationRate:        round2(rate),
	}
}

// Window builds the rate window for samples ordered newest first.
func Window(samples []Sample) RateWindow {
	w := RateWindow{
		ItemCounts:      make([]int, len(samples)),
		ConfirmedCounts: make([]int, len(samples)),
	}
	if len(samples) == 0 {
		return w
	}

	w.End = samples[0].Timestamp.UnixMilli()
	w.Start = samples[len(samples)-1].Timestamp.UnixMilli()
	for i, s := range samples {
		w.ItemCounts[i] = s.ItemCount
		w.ConfirmedCounts[i] = s.ConfirmedCount
	}
	return w
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
