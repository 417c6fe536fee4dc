package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// metadataTimeout bounds each instance-metadata probe; a non-cloud host
// must not stall startup waiting on an unreachable metadata service.
const metadataTimeout = 2 * time.Second

// InstanceMetadata carries the best-effort cloud facts fetched at startup:
// EC2 user-data/instance-id/availability-zone, or GCE's equivalents.
// Empty fields mean the probe failed or the host is not on that cloud.
type InstanceMetadata struct {
	UserData         string
	InstanceID       string
	AvailabilityZone string
}

// FetchInstanceMetadata probes EC2 first, then GCE, returning the first
// provider that answers. Both probes are best-effort: a failure (timeout,
// connection refused, non-cloud host) yields a zero InstanceMetadata and
// no error, since absence of cloud metadata is the common case.
func FetchInstanceMetadata(ctx context.Context) InstanceMetadata {
	if md, ok := fetchEC2Metadata(ctx); ok {
		return md
	}
	if md, ok := fetchGCEMetadata(ctx); ok {
		return md
	}
	return InstanceMetadata{}
}

const ec2MetadataBase = "http://169.254.169.254/latest"

func fetchEC2Metadata(ctx context.Context) (InstanceMetadata, bool) {
	client := &http.Client{Timeout: metadataTimeout}

	instanceID, err := getBody(ctx, client, ec2MetadataBase+"/meta-data/instance-id", nil)
	if err != nil {
		return InstanceMetadata{}, false
	}

	userData, _ := getBody(ctx, client, ec2MetadataBase+"/user-data", nil)
	az, _ := getBody(ctx, client, ec2MetadataBase+"/meta-data/placement/availability-zone", nil)

	return InstanceMetadata{
		UserData:         userData,
		InstanceID:       instanceID,
		AvailabilityZone: az,
	}, true
}

const gceMetadataBase = "http://metadata.google.internal/computeMetadata/v1"

func fetchGCEMetadata(ctx context.Context) (InstanceMetadata, bool) {
	client := &http.Client{Timeout: metadataTimeout}
	headers := map[string]string{"Metadata-Flavor": "Google"}

	instanceID, err := getBody(ctx, client, gceMetadataBase+"/instance/id", headers)
	if err != nil {
		return InstanceMetadata{}, false
	}

	userData, _ := getBody(ctx, client, gceMetadataBase+"/instance/attributes/wpt_data", headers)
	zone, _ := getBody(ctx, client, gceMetadataBase+"/instance/zone", headers)

	return InstanceMetadata{
		UserData:         userData,
		InstanceID:       instanceID,
		AvailabilityZone: zone,
	}, true
}

func getBody(ctx context.Context, client *http.Client, url string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
