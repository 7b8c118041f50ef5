package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	serialConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robobridge_serial_connected",
		Help: "1 while the serial device is open",
	})

	sensorLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robobridge_sensor_lines_total",
		Help: "Lines read from the serial device",
	})

	deviceWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robobridge_serial_write_errors_total",
		Help: "Commands that could not be written to the serial device",
	})
)
