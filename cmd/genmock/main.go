// Command genmock generates geocode request fixtures: synthetic GPS tracks
// that walk away from a few start points and then revisit earlier positions
// with a little jitter, the access pattern the cache is built for.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/geocode_requests.json
//	go run ./cmd/genmock -points 500 -revisits 100 -publish localhost:9092
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geo"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// request mirrors the wire format consumed by the geocoder pipeline.
type request struct {
	ID  string  `json:"id"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type trackOptions struct {
	points   int
	revisits int
	step     float64
	jitter   float64
	idPrefix string
}

var defaultStarts = "13.391,52.5129,90;2.3522,48.8566,45;-9.1393,38.7223,0"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the JSON request fixture")
	starts := flag.String("starts", defaultStarts, "semicolon-separated lon,lat,bearing track starts")
	points := flag.Int("points", 16, "points walked per track")
	revisits := flag.Int("revisits", 4, "earlier points revisited per track")
	step := flag.Float64("step", 15, "metres between consecutive points")
	jitter := flag.Float64("jitter", 4, "maximum metres of jitter on revisits")
	seed := flag.Uint64("seed", 1, "random seed")
	idPrefix := flag.String("id-prefix", "req-", "sequential id prefix; empty uses UUIDs")
	publish := flag.String("publish", "", "comma-separated Kafka brokers to publish to")
	topic := flag.String("topic", "geocode-requests", "topic used with -publish")
	flag.Parse()

	if *out == "" && *publish == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out or -publish")
	}

	tracks, err := parseStarts(*starts)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	reqs := generate(tracks, trackOptions{
		points:   *points,
		revisits: *revisits,
		step:     *step,
		jitter:   *jitter,
		idPrefix: *idPrefix,
	}, rng)
	log.Printf("generated %d requests on %d tracks", len(reqs), len(tracks))

	if *out != "" {
		if err := writeJSON(*out, reqs); err != nil {
			return fmt.Errorf("writing fixture: %w", err)
		}
		log.Printf("wrote fixture: %s", *out)
	}
	if *publish != "" {
		if err := publishRequests(*publish, *topic, reqs); err != nil {
			return fmt.Errorf("publishing: %w", err)
		}
		log.Printf("published %d requests to %s", len(reqs), *topic)
	}

	printStats(reqs)
	return nil
}

type trackStart struct {
	point   domain.Point
	bearing float64
}

func parseStarts(spec string) ([]trackStart, error) {
	var out []trackStart
	for _, part := range strings.Split(spec, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("track start %q: want lon,lat,bearing", part)
		}
		var vals [3]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("track start %q: %w", part, err)
			}
			vals[i] = v
		}
		p := domain.Point{Lon: vals[0], Lat: vals[1]}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("track start %q: %w", part, err)
		}
		out = append(out, trackStart{point: p, bearing: vals[2]})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no track starts given")
	}
	return out, nil
}

func generate(tracks []trackStart, opts trackOptions, rng *rand.Rand) []request {
	reqs := make([]request, 0, len(tracks)*(opts.points+opts.revisits))
	next := func(p domain.Point) {
		id := uuid.NewString()
		if opts.idPrefix != "" {
			id = fmt.Sprintf("%s%03d", opts.idPrefix, len(reqs)+1)
		}
		reqs = append(reqs, request{ID: id, Lon: round6(p.Lon), Lat: round6(p.Lat)})
	}

	for _, tr := range tracks {
		walked := make([]domain.Point, 0, opts.points)
		p := tr.point
		for range opts.points {
			walked = append(walked, p)
			next(p)
			p = move(p, tr.bearing, opts.step)
		}
		for range opts.revisits {
			if len(walked) == 0 {
				break
			}
			q := walked[rng.IntN(len(walked))]
			if opts.jitter > 0 && rng.IntN(2) == 0 {
				q = move(q, rng.Float64()*360, rng.Float64()*opts.jitter)
			}
			next(q)
		}
	}
	return reqs
}

func move(p domain.Point, bearing, meters float64) domain.Point {
	return domain.PointFromOrb(geo.PointAtBearingAndDistance(p.Orb(), bearing, meters))
}

func round6(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 6, 64), 64)
	return r
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func publishRequests(brokers, topic string, reqs []request) error {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	defer w.Close()

	msgs := make([]kafkago.Message, 0, len(reqs))
	for _, r := range reqs {
		payload, err := json.Marshal(r)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(r.ID), Value: payload})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return w.WriteMessages(ctx, msgs...)
}

func printStats(reqs []request) {
	distinct := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		distinct[domain.Point{Lon: r.Lon, Lat: r.Lat}.Key()] = struct{}{}
	}
	fmt.Printf("\n=== Fixture Stats ===\n")
	fmt.Printf("Requests:           %d\n", len(reqs))
	fmt.Printf("Distinct positions: %d\n", len(distinct))
	fmt.Printf("Exact repeats:      %d\n", len(reqs)-len(distinct))
}
