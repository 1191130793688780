package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	nurl "net/url"
	"strings"
	"time"

	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/domain"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
)

// ConsoleDirectory reads customers, vehicles and dealers from the
// dealership console API.
type ConsoleDirectory struct {
	client   *http.Client
	baseURL  string
	username string
	password string
	logger   out.LoggerPort
}

var _ out.DirectoryPort = (*ConsoleDirectory)(nil)

func NewConsoleDirectory(cfg *config.Config, logger out.LoggerPort) *ConsoleDirectory {
	return &ConsoleDirectory{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimRight(cfg.Directory.URL, "/"),
		username: cfg.Directory.Username,
		password: cfg.Directory.Password,
		logger:   logger.WithModule("ConsoleDirectory"),
	}
}

func (d *ConsoleDirectory) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var customer domain.Customer
	if err := d.fetch(ctx, "customers", customerID, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (d *ConsoleDirectory) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	var vehicle domain.Vehicle
	if err := d.fetch(ctx, "vehicles", vehicleID, &vehicle); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (d *ConsoleDirectory) GetDealer(ctx context.Context, dealerID string) (*domain.Dealer, error) {
	var dealer domain.Dealer
	if err := d.fetch(ctx, "dealers", dealerID, &dealer); err != nil {
		return nil, err
	}
	return &dealer, nil
}

func (d *ConsoleDirectory) fetch(ctx context.Context, resource, id string, target interface{}) error {
	event := "directory." + strings.TrimSuffix(resource, "s")
	fields := out.LogFields{"id": id}

	d.logger.Debug(event+".fetch", fields)

	url := fmt.Sprintf("%s/%s/%s", d.baseURL, resource, nurl.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		d.logger.Error(event+".fetch_failed", out.LogFields{"id": id, "error": err.Error()})
		return err
	}

	req.Header.Set("Accept", "application/json")
	if d.username != "" {
		req.SetBasicAuth(d.username, d.password)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error(event+".fetch_failed", out.LogFields{"id": id, "error": err.Error()})
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s.not_found: %s", event, id)
	}
	if resp.StatusCode != http.StatusOK {
		d.logger.Error(event+".fetch_failed", out.LogFields{"id": id, "status": resp.StatusCode})
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		d.logger.Error(event+".decode_response_failed", out.LogFields{"id": id, "error": err.Error()})
		return err
	}

	return nil
}
