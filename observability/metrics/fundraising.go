package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type FundraisingMetrics struct {
	proposalsCreated prometheus.Counter
	donations        prometheus.Counter
	payouts          prometheus.Counter
	poolBalance      prometheus.Gauge
}

var (
	fundraisingOnce     sync.Once
	fundraisingRegistry *FundraisingMetrics
)

func Fundraising() *FundraisingMetrics {
	fundraisingOnce.Do(func() {
		fundraisingRegistry = &FundraisingMetrics{
			proposalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fund_proposals_created_total",
				Help: "Count of proposals registered.",
			}),
			donations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fund_donations_total",
				Help: "Count of accepted donations.",
			}),
			payouts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fund_payouts_total",
				Help: "Count of completed proposal payouts.",
			}),
			poolBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "fund_matching_pool_balance",
				Help: "Current matching pool balance in base units.",
			}),
		}
		prometheus.MustRegister(
			fundraisingRegistry.proposalsCreated,
			fundraisingRegistry.donations,
			fundraisingRegistry.payouts,
			fundraisingRegistry.poolBalance,
		)
	})
	return fundraisingRegistry
}

func (m *FundraisingMetrics) ProposalCreated() {
	if m == nil {
		return
	}
	m.proposalsCreated.Inc()
}

func (m *FundraisingMetrics) DonationAccepted() {
	if m == nil {
		return
	}
	m.donations.Inc()
}

func (m *FundraisingMetrics) PayoutCompleted() {
	if m == nil {
		return
	}
	m.payouts.Inc()
}

func (m *FundraisingMetrics) SetPoolBalance(balance float64) {
	if m == nil {
		return
	}
	m.poolBalance.Set(balance)
}
