package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	models "arkado/internal/models"
	remote "arkado/internal/remote"
)

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/sessions" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		if body["deviceId"] != "dev-1" {
			t.Errorf("deviceId = %v, want dev-1", body["deviceId"])
		}
		json.NewEncoder(w).Encode(models.SessionGrant{SessionID: "sess-1", Token: "tok"})
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, time.Second)
	grant, err := c.CreateSession(context.Background(), "dev-1", map[string]string{"userAgent": "ua"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if grant.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", grant.SessionID)
	}
}

func TestCreateSessionRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, time.Second)
	_, err := c.CreateSession(context.Background(), "dev-1", nil)
	if !errors.Is(err, remote.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestSubmitScoreAndExpiredMapping(t *testing.T) {
	var gotPath string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(models.ScoreResult{Qualifies: true, Tier: 2, Voucher: &models.Voucher{Code: "WIN-22", Tier: 2, DiscountPct: 20}})
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, time.Second)
	started := time.UnixMilli(1700000000000)
	result, err := c.SubmitScore(context.Background(), "sess-1", "runner", 950, started, started.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("SubmitScore: %v", err)
	}
	if gotPath != "/v1/sessions/sess-1/score" {
		t.Errorf("Path = %q", gotPath)
	}
	if !result.Qualifies || result.Voucher == nil || result.Voucher.Code != "WIN-22" {
		t.Errorf("Result = %+v", result)
	}

	status = http.StatusGone
	if _, err := c.SubmitScore(context.Background(), "sess-1", "runner", 1, started, started); !errors.Is(err, remote.ErrSessionExpired) {
		t.Errorf("err = %v, want ErrSessionExpired", err)
	}
}

func TestEndSessionTreatsNotFoundAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, time.Second)
	if err := c.EndSession(context.Background(), "gone"); err != nil {
		t.Errorf("EndSession on unknown session = %v, want nil", err)
	}
}

func TestCheckVoucherAvailability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("gameType") != "claw" {
			t.Errorf("gameType = %q, want claw", r.URL.Query().Get("gameType"))
		}
		w.Write([]byte(`{"tiers":[{"tier":0,"available":true},{"tier":1,"available":false},{"tier":2,"available":true},{"tier":3,"available":true}]}`))
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, time.Second)
	avail, err := c.CheckVoucherAvailability(context.Background(), "claw")
	if err != nil {
		t.Fatalf("CheckVoucherAvailability: %v", err)
	}
	if avail[1] {
		t.Error("Tier 1 should be exhausted")
	}
	if !avail[0] || !avail[2] || !avail[3] {
		t.Errorf("Availability = %v", avail)
	}
}

func TestLatestRewardNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, time.Second)
	if _, err := c.LatestReward(context.Background(), "sess-1"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGenericServerErrorIsNotSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, time.Second)
	err := c.RedeemVoucher(context.Background(), "WIN-22", nil)
	if err == nil {
		t.Fatal("Expected an error for 500")
	}
	if errors.Is(err, remote.ErrRateLimited) || errors.Is(err, remote.ErrSessionExpired) || errors.Is(err, remote.ErrNotFound) {
		t.Errorf("Generic failure mapped to a sentinel: %v", err)
	}
}
