package model

import (
	"testing"
	"time"
)

func TestLocationDistance(t *testing.T) {
	nyc := Location{Latitude: 40.7128, Longitude: -74.0060}
	philly := Location{Latitude: 39.9526, Longitude: -75.1652}
	d := nyc.DistanceTo(philly)
	// great-circle NYC to Philadelphia is roughly 130 km
	if d < 120 || d > 140 {
		t.Fatalf("distance = %.1f km", d)
	}
	if nyc.DistanceTo(nyc) != 0 {
		t.Fatal("distance to self should be zero")
	}
}

func TestLocationValidate(t *testing.T) {
	if err := (Location{Latitude: 91, Longitude: 0}).Validate(); err == nil {
		t.Fatal("latitude 91 should fail")
	}
	if err := (Location{Latitude: 0, Longitude: -181}).Validate(); err == nil {
		t.Fatal("longitude -181 should fail")
	}
	if err := (Location{Latitude: 40.7, Longitude: -74.0}).Validate(); err != nil {
		t.Fatalf("valid location rejected: %v", err)
	}
}

func TestTrafficDelayFactor(t *testing.T) {
	cases := map[TrafficLevel]float64{
		TrafficFreeFlow:   1.0,
		TrafficLight:      1.1,
		TrafficModerate:   1.3,
		TrafficHeavy:      1.7,
		TrafficStandstill: 3.0,
		"mystery":         1.5,
	}
	for level, want := range cases {
		c := TrafficCondition{Level: level}
		if got := c.DelayFactor(); got != want {
			t.Fatalf("%s: delay = %v, want %v", level, got, want)
		}
	}
}

func TestPriorityRankOrdering(t *testing.T) {
	order := []LoadPriority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("%s should outrank %s", order[i], order[i-1])
		}
	}
}

func TestSeverityRank(t *testing.T) {
	if SeverityRank("critical") >= SeverityRank("low") {
		t.Fatal("critical must sort before low")
	}
	if SeverityRank("unheard_of") != SeverityRank("medium") {
		t.Fatal("unknown severity defaults to medium")
	}
}

func TestLoadLifecycleStatus(t *testing.T) {
	now := time.Now()
	l := Load{}
	if got := l.LifecycleStatus(); got != "unassigned" {
		t.Fatalf("got %s", got)
	}
	l.AssignedTruckID = "T1"
	if got := l.LifecycleStatus(); got != "assigned" {
		t.Fatalf("got %s", got)
	}
	l.PickedUpAt = &now
	if got := l.LifecycleStatus(); got != "picked_up" {
		t.Fatalf("got %s", got)
	}
	l.DeliveredAt = &now
	if got := l.LifecycleStatus(); got != "delivered" {
		t.Fatalf("got %s", got)
	}
}
