package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/teslashibe/go-lightwall/internal/config"
	"github.com/teslashibe/go-lightwall/internal/httpc"
)

// dashboardBase returns the URL of the running installation's dashboard.
func dashboardBase() string {
	if dashboardURL != "" {
		return strings.TrimSuffix(dashboardURL, "/")
	}
	port := loaded.Dashboard.Port
	if port == "" {
		port = config.DefaultDashboard
	}
	return config.DashboardURL(port)
}

func getJSON(ctx context.Context, path string, out any) error {
	resp, err := httpc.Get(ctx, dashboardBase()+path)
	if err != nil {
		return fmt.Errorf("dashboard unreachable (is lightwall running?): %w", err)
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := httpc.Post(ctx, dashboardBase()+path, "application/json", body)
	if err != nil {
		return fmt.Errorf("dashboard unreachable (is lightwall running?): %w", err)
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func decode(resp *http.Response, out any) error {
	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("dashboard: %s", apiErr.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
