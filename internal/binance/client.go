// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package binance is a client for the signed exchange REST endpoints the
// poller depends on. It never logs secret material.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/paygate/internal/logging"
)

const (
	DefaultBaseUrl = "https://api.binance.com"

	serverTimePath     = "/api/v3/time"
	depositHistoryPath = "/sapi/v1/capital/deposit/hisrec"

	requestTimeout = 30 * time.Second
)

// DepositStatusSuccess is the exchange's status value for a credited
// deposit
const DepositStatusSuccess = 1

// DepositRecord is a single deposit history entry as returned by the
// exchange
type DepositRecord struct {
	TxId         string `json:"txId"`
	Coin         string `json:"coin"`
	Network      string `json:"network"`
	Amount       string `json:"amount"`
	Status       int    `json:"status"`
	Address      string `json:"address"`
	AddressTag   string `json:"addressTag,omitempty"`
	InsertTime   int64  `json:"insertTime"`
	CompleteTime int64  `json:"completeTime,omitempty"`
	ConfirmTimes int    `json:"confirmTimes"`
}

type Client struct {
	baseUrl      string
	apiKey       string
	apiSecret    string
	httpClient   *http.Client
	timeOffsetMs atomic.Int64
}

// NewClient creates an exchange client. Both credentials are required;
// a missing secret is a configuration error, not a runtime one.
func NewClient(baseUrl string, apiKey string, apiSecret string) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New(
			"BINANCE_API_KEY and BINANCE_API_SECRET must be provided",
		)
	}
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	return &Client{
		baseUrl:   baseUrl,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}, nil
}

// SyncTime fetches the exchange server time and stores the offset from
// the local clock. Returns the offset in milliseconds.
func (c *Client) SyncTime(ctx context.Context) (int64, error) {
	logger := logging.GetLogger()
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseUrl+serverTimePath,
		nil,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("server time request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf(
			"unexpected server time response: %d",
			resp.StatusCode,
		)
	}
	var data struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("failed to decode server time: %w", err)
	}
	localTime := time.Now().UnixMilli()
	offset := data.ServerTime - localTime
	c.timeOffsetMs.Store(offset)
	logger.Debug(
		"synced exchange server time",
		"serverTime", data.ServerTime,
		"localTime", localTime,
		"offsetMs", offset,
	)
	return offset, nil
}

// NowMs returns the current time in milliseconds adjusted by the stored
// server offset
func (c *Client) NowMs() int64 {
	return time.Now().UnixMilli() + c.timeOffsetMs.Load()
}

// signedGet performs a signed GET with the timestamp and signature
// parameters appended per the exchange's signing scheme
func (c *Client) signedGet(
	ctx context.Context,
	path string,
	params map[string]string,
	out any,
) error {
	signedParams := make(map[string]string, len(params)+1)
	for k, v := range params {
		signedParams[k] = v
	}
	signedParams["timestamp"] = strconv.FormatInt(c.NowMs(), 10)
	queryString := BuildQuery(signedParams)
	signature := SignQuery(queryString, c.apiSecret)
	url := c.baseUrl + path + "?" + queryString + "&signature=" + signature
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"unexpected response: %s: %d: %s",
			path,
			resp.StatusCode,
			body,
		)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetDepositHistory fetches deposit records for a time window via the
// signed deposit history endpoint
func (c *Client) GetDepositHistory(
	ctx context.Context,
	startTimeMs int64,
	endTimeMs int64,
	limit int,
) ([]DepositRecord, error) {
	params := map[string]string{
		"limit": strconv.Itoa(limit),
	}
	if startTimeMs > 0 {
		params["startTime"] = strconv.FormatInt(startTimeMs, 10)
	}
	if endTimeMs > 0 {
		params["endTime"] = strconv.FormatInt(endTimeMs, 10)
	}
	var deposits []DepositRecord
	if err := c.signedGet(ctx, depositHistoryPath, params, &deposits); err != nil {
		return nil, err
	}
	return deposits, nil
}
