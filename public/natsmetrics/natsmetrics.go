// Package natsmetrics exposes connection statistics as Prometheus
// metrics.
package natsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fujin-io/natsc/public/natsc"
)

// Collector implements prometheus.Collector over one connection's
// counters. Register it with any prometheus.Registerer.
type Collector struct {
	conn *natsc.Conn

	inMsgs     *prometheus.Desc
	outMsgs    *prometheus.Desc
	inBytes    *prometheus.Desc
	outBytes   *prometheus.Desc
	reconnects *prometheus.Desc
	connected  *prometheus.Desc
	pending    *prometheus.Desc
}

// NewCollector returns a Collector for conn. The name label keeps
// multiple connections apart in one registry.
func NewCollector(name string, conn *natsc.Conn) *Collector {
	labels := prometheus.Labels{"connection": name}
	return &Collector{
		conn: conn,
		inMsgs: prometheus.NewDesc(
			"natsc_in_msgs_total", "Messages received.", nil, labels),
		outMsgs: prometheus.NewDesc(
			"natsc_out_msgs_total", "Messages published.", nil, labels),
		inBytes: prometheus.NewDesc(
			"natsc_in_bytes_total", "Payload bytes received.", nil, labels),
		outBytes: prometheus.NewDesc(
			"natsc_out_bytes_total", "Payload bytes published.", nil, labels),
		reconnects: prometheus.NewDesc(
			"natsc_reconnects_total", "Completed reconnects.", nil, labels),
		connected: prometheus.NewDesc(
			"natsc_connected", "1 while the connection is up.", nil, labels),
		pending: prometheus.NewDesc(
			"natsc_pending_msgs", "Messages queued but not yet handled.", nil, labels),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.inMsgs
	ch <- c.outMsgs
	ch <- c.inBytes
	ch <- c.outBytes
	ch <- c.reconnects
	ch <- c.connected
	ch <- c.pending
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.conn.Stats()
	ch <- prometheus.MustNewConstMetric(c.inMsgs, prometheus.CounterValue, float64(st.InMsgs))
	ch <- prometheus.MustNewConstMetric(c.outMsgs, prometheus.CounterValue, float64(st.OutMsgs))
	ch <- prometheus.MustNewConstMetric(c.inBytes, prometheus.CounterValue, float64(st.InBytes))
	ch <- prometheus.MustNewConstMetric(c.outBytes, prometheus.CounterValue, float64(st.OutBytes))
	ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(st.Reconnects))
	var up float64
	if c.conn.IsConnected() {
		up = 1
	}
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, up)
	pm, _ := c.conn.NumPending()
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(pm))
}

// Handler serves reg over HTTP in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
