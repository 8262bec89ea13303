// Package ipinfo inspects the visible egress IP by querying ipinfo.io
// through the executor, so the answer reflects the active proxy.
package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/viper"

	"egress-client/pkg/client"
	"egress-client/pkg/models"
)

// Inspect fetches ipinfo.io for the caller's own egress address.
func Inspect(ctx context.Context, c *client.Client) (models.IPInfoResponse, error) {
	url := "https://ipinfo.io/json"
	if token := viper.GetString("ipinfo.token"); token != "" {
		url = fmt.Sprintf("%s?token=%s", url, token)
	}

	res, err := c.Do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.IPInfoResponse{}, err
	}

	var info models.IPInfoResponse
	if err := json.Unmarshal(res.Body, &info); err != nil {
		return models.IPInfoResponse{}, fmt.Errorf("failed to decode ipinfo response: %w", err)
	}

	return info, nil
}

// SplitOrg separates an ipinfo "org" field like "AS13335 Cloudflare, Inc."
// into AS number and organization name.
func SplitOrg(org string) (asNumber, asOrg string) {
	orgParts := strings.SplitN(org, " ", 2)
	if len(orgParts) == 2 {
		return strings.TrimPrefix(orgParts[0], "AS"), orgParts[1]
	}
	return "", org
}
