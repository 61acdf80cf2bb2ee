package services

import (
	"errors"
	"sort"

	"fulfillment-service/internal/carriers"
)

// ErrNoCouriers is returned when the carrier quoted nothing for a lane
var ErrNoCouriers = errors.New("no couriers available for this route")

// SelectCourier picks the cheapest surface courier with a positive freight
// charge. When none qualifies it falls back to the cheapest quote overall.
func SelectCourier(quotes []carriers.CourierQuote) (*carriers.CourierQuote, error) {
	if len(quotes) == 0 {
		return nil, ErrNoCouriers
	}

	var surface []carriers.CourierQuote
	for _, q := range quotes {
		if q.IsSurface && q.FreightCharge > 0 {
			surface = append(surface, q)
		}
	}

	candidates := surface
	if len(candidates) == 0 {
		candidates = append([]carriers.CourierQuote(nil), quotes...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Rate < candidates[j].Rate
	})

	chosen := candidates[0]
	return &chosen, nil
}
