// Package shaper turns validated readings into the visualization-ready form
// that is persisted and fanned out to dashboards.
package shaper

import (
	"time"

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

// Shape builds the StructuredReading for a validated reading. at is used as
// the timestamp when the reading does not carry its own. Shape never fails: a
// device type without a template yields a reading with only the raw data and
// timestamp set.
func Shape(deviceType models.DeviceType, r models.Reading, at time.Time) models.StructuredReading {
	out := models.StructuredReading{
		DeviceType: deviceType,
		RawData:    r.Clone(),
		Timestamp:  at,
	}
	if ts, ok := r.Timestamp(); ok {
		out.Timestamp = ts
	}

	var (
		tpl     models.VisualizationTemplate
		metrics models.Metrics
	)
	if deviceType == models.Other {
		sensorType := r.String("sensorType")
		metrics.Primary = metricFrom(r["primaryMetric"])
		metrics.Secondary = metricsFrom(r["secondaryMetrics"])
		tpl = GenericTemplate(sensorType, metrics.Primary, metrics.Secondary)
	} else {
		var ok bool
		if tpl, ok = Template(deviceType); !ok {
			return out
		}
		metrics = fixedMetrics(tpl, r)
	}

	out.Template = &tpl
	out.Metrics = &metrics
	out.Visualization = &models.Visualization{
		ChartType: tpl.ChartType,
		Color:     tpl.Color,
		Icon:      tpl.Icon,
		Category:  tpl.Category,
	}
	return out
}

func fixedMetrics(tpl models.VisualizationTemplate, r models.Reading) models.Metrics {
	declared := r.String("unit")
	m := models.Metrics{
		Primary: models.Metric{
			Name:  tpl.PrimaryMetric,
			Value: r[tpl.PrimaryMetric],
			Unit:  resolveUnit(tpl.PrimaryMetric, declared, tpl.Unit),
		},
		Secondary: make([]models.Metric, 0, len(tpl.SecondaryMetrics)),
	}
	for _, name := range tpl.SecondaryMetrics {
		v, ok := r[name]
		if !ok || v == nil {
			continue
		}
		m.Secondary = append(m.Secondary, models.Metric{
			Name:  name,
			Value: v,
			Unit:  resolveUnit(name, declared, ""),
		})
	}
	return m
}

// metricFrom reads a {name, value, unit} object as submitted by a generic sensor
func metricFrom(v interface{}) models.Metric {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return models.Metric{}
	}
	name, _ := obj["name"].(string)
	unit, _ := obj["unit"].(string)
	return models.Metric{Name: name, Value: obj["value"], Unit: unit}
}

func metricsFrom(v interface{}) []models.Metric {
	out := []models.Metric{}
	switch items := v.(type) {
	case []interface{}:
		for _, item := range items {
			out = append(out, metricFrom(item))
		}
	case []map[string]interface{}:
		for _, item := range items {
			out = append(out, metricFrom(item))
		}
	}
	return out
}
