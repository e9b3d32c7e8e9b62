package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

// Geocoder resolves coordinates to a display address. Implementations
// never fail: on any miss the formatted coordinate string is returned.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) string
}

// NominatimGeocoder reverse-geocodes through the OSM Nominatim API
// with a Redis cache in front. Coordinates are rounded to ~100 m for
// the cache key so nearby fixes share an entry.
type NominatimGeocoder struct {
	baseURL string
	http    *http.Client
	redis   *redis.Client
}

func NewNominatimGeocoder(redisClient *redis.Client) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL: "https://nominatim.openstreetmap.org",
		http:    &http.Client{Timeout: 5 * time.Second},
		redis:   redisClient,
	}
}

func coordFallback(lat, lng float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lng)
}

func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lng float64) string {
	key := fmt.Sprintf("road:geo:%.3f,%.3f", lat, lng)
	if g.redis != nil {
		if cached, err := g.redis.Get(ctx, key).Result(); err == nil && cached != "" {
			return cached
		}
	}

	addr, err := g.lookup(ctx, lat, lng)
	if err != nil || addr == "" {
		if err != nil {
			log.Printf("[Geocoder] Reverse lookup failed for %.4f,%.4f: %v", lat, lng, err)
		}
		return coordFallback(lat, lng)
	}

	if g.redis != nil {
		if err := g.redis.Set(ctx, key, addr, 7*24*time.Hour).Err(); err != nil {
			log.Printf("[Geocoder] Failed to cache address: %v", err)
		}
	}
	return addr
}

func (g *NominatimGeocoder) lookup(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lng))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "roadapp-api/1.0")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var parsed struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.DisplayName, nil
}
