//go:build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	baseURL = "http://localhost:8080"
	baseLat = 12.9716
	baseLng = 77.5946
)

type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalLatency    int64
	MinLatency      int64
	MaxLatency      int64
}

func main() {
	rand.Seed(time.Now().UnixNano())

	fmt.Println("RideBid Load Test")
	fmt.Println("=================")

	fmt.Println("\n1. Bringing drivers online...")
	driverIDs := bringDriversOnline(50)
	if len(driverIDs) == 0 {
		log.Fatal("Failed to bring drivers online")
	}
	fmt.Printf("Online drivers: %d\n", len(driverIDs))

	fmt.Println("\n2. Testing Location Updates (1000 updates, 50 concurrent)...")
	stats := testLocationUpdates(driverIDs, 1000, 50)
	printStats("Location Updates", stats)

	fmt.Println("\n3. Testing Ride Creation (100 rides, 10 concurrent)...")
	stats, rideIDs := testRideCreation(100, 10)
	printStats("Ride Creation", stats)

	fmt.Println("\n4. Testing Accept Contention (5 bids per ride, concurrent accepts)...")
	testAcceptContention(rideIDs, driverIDs)

	fmt.Println("\nLoad test completed!")
}

func actorRequest(method, url, actorID, role string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewBuffer(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actorID)
	req.Header.Set("X-Actor-Role", role)
	return http.DefaultClient.Do(req)
}

func drainClose(resp *http.Response) {
	if resp != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

func bringDriversOnline(n int) []string {
	driverIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		driverID := fmt.Sprintf("load-driver-%03d", i)
		resp, err := actorRequest("POST", baseURL+"/v1/drivers/"+driverID+"/online", driverID, "driver",
			map[string]bool{"online": true})
		if err != nil {
			continue
		}
		if resp.StatusCode == 200 {
			driverIDs = append(driverIDs, driverID)
		}
		drainClose(resp)
	}
	return driverIDs
}

func testLocationUpdates(driverIDs []string, numRequests, concurrency int) *Stats {
	stats := &Stats{MinLatency: int64(^uint64(0) >> 1)}
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(driverID string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			payload := map[string]float64{
				"lat": baseLat + (rand.Float64()-0.5)*0.1,
				"lng": baseLng + (rand.Float64()-0.5)*0.1,
			}

			start := time.Now()
			resp, err := actorRequest("POST", baseURL+"/v1/drivers/"+driverID+"/location", driverID, "driver", payload)
			latency := time.Since(start).Milliseconds()
			record(stats, latency, err == nil && resp != nil && resp.StatusCode == 200)
			drainClose(resp)
		}(driverIDs[rand.Intn(len(driverIDs))])
	}

	wg.Wait()
	return stats
}

func testRideCreation(numRequests, concurrency int) (*Stats, []string) {
	stats := &Stats{MinLatency: int64(^uint64(0) >> 1)}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		rideIDs []string
	)
	semaphore := make(chan struct{}, concurrency)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		// One ride per rider: a rider with an active ride is rejected.
		go func(idx int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			riderID := fmt.Sprintf("load-rider-%03d", idx)
			ride := map[string]interface{}{
				"pickup": map[string]interface{}{
					"lat":     baseLat + (rand.Float64()-0.5)*0.1,
					"lng":     baseLng + (rand.Float64()-0.5)*0.1,
					"address": fmt.Sprintf("Pickup %d", idx),
				},
				"dropoff": map[string]interface{}{
					"lat":     baseLat + (rand.Float64()-0.5)*0.1,
					"lng":     baseLng + (rand.Float64()-0.5)*0.1,
					"address": fmt.Sprintf("Dropoff %d", idx),
				},
			}

			start := time.Now()
			resp, err := actorRequest("POST", baseURL+"/v1/rides", riderID, "rider", ride)
			latency := time.Since(start).Milliseconds()

			ok := err == nil && resp != nil && resp.StatusCode == 201
			record(stats, latency, ok)
			if ok {
				var result map[string]interface{}
				json.NewDecoder(resp.Body).Decode(&result)
				if id, exists := result["id"].(string); exists {
					mu.Lock()
					rideIDs = append(rideIDs, id)
					mu.Unlock()
				}
			}
			drainClose(resp)
		}(i)
	}

	wg.Wait()
	return stats, rideIDs
}

// testAcceptContention places several bids on each ride and then fires an
// accept for every bid at once. A correct run books each ride exactly once.
func testAcceptContention(rideIDs, driverIDs []string) {
	if len(rideIDs) > 20 {
		rideIDs = rideIDs[:20]
	}

	var doubleBookings, noBookings int
	for i, rideID := range rideIDs {
		riderID := fmt.Sprintf("load-rider-%03d", i)

		bidIDs := make([]string, 0, 5)
		for j := 0; j < 5; j++ {
			driverID := driverIDs[(i*5+j)%len(driverIDs)]
			amount := float64(100+rand.Intn(200)) + float64(rand.Intn(100))/100

			resp, err := actorRequest("POST", baseURL+"/v1/rides/"+rideID+"/bids", driverID, "driver",
				map[string]float64{"amount": amount})
			if err != nil || resp == nil || resp.StatusCode != 201 {
				drainClose(resp)
				continue
			}
			var result map[string]interface{}
			json.NewDecoder(resp.Body).Decode(&result)
			if id, ok := result["id"].(string); ok {
				bidIDs = append(bidIDs, id)
			}
			drainClose(resp)
		}

		var (
			wg       sync.WaitGroup
			accepted int64
		)
		for _, bidID := range bidIDs {
			wg.Add(1)
			go func(bidID string) {
				defer wg.Done()
				resp, err := actorRequest("POST", baseURL+"/v1/bids/"+bidID+"/accept", riderID, "rider", nil)
				if err == nil && resp != nil && resp.StatusCode == 200 {
					atomic.AddInt64(&accepted, 1)
				}
				drainClose(resp)
			}(bidID)
		}
		wg.Wait()

		switch {
		case accepted > 1:
			doubleBookings++
		case accepted == 0 && len(bidIDs) > 0:
			noBookings++
		}
	}

	fmt.Printf("\nAccept Contention Results:\n")
	fmt.Printf("  Rides contested:  %d\n", len(rideIDs))
	fmt.Printf("  Double bookings:  %d (must be 0)\n", doubleBookings)
	fmt.Printf("  Unbooked rides:   %d\n", noBookings)
}

func record(stats *Stats, latency int64, ok bool) {
	atomic.AddInt64(&stats.TotalRequests, 1)
	atomic.AddInt64(&stats.TotalLatency, latency)
	if !ok {
		atomic.AddInt64(&stats.FailedRequests, 1)
		return
	}
	atomic.AddInt64(&stats.SuccessRequests, 1)

	for {
		old := atomic.LoadInt64(&stats.MinLatency)
		if latency >= old || atomic.CompareAndSwapInt64(&stats.MinLatency, old, latency) {
			break
		}
	}
	for {
		old := atomic.LoadInt64(&stats.MaxLatency)
		if latency <= old || atomic.CompareAndSwapInt64(&stats.MaxLatency, old, latency) {
			break
		}
	}
}

func printStats(name string, stats *Stats) {
	avgLatency := float64(0)
	if stats.TotalRequests > 0 {
		avgLatency = float64(stats.TotalLatency) / float64(stats.TotalRequests)
	}

	fmt.Printf("\n%s Results:\n", name)
	fmt.Printf("  Total Requests:   %d\n", stats.TotalRequests)
	fmt.Printf("  Successful:       %d\n", stats.SuccessRequests)
	fmt.Printf("  Failed:           %d\n", stats.FailedRequests)
	fmt.Printf("  Success Rate:     %.2f%%\n", float64(stats.SuccessRequests)/float64(stats.TotalRequests)*100)
	fmt.Printf("  Avg Latency:      %.2f ms\n", avgLatency)
	if stats.MinLatency != int64(^uint64(0)>>1) {
		fmt.Printf("  Min Latency:      %d ms\n", stats.MinLatency)
	}
	fmt.Printf("  Max Latency:      %d ms\n", stats.MaxLatency)
	fmt.Printf("  Throughput:       %.0f req/s\n", float64(stats.TotalRequests)/(float64(stats.TotalLatency)/1000))
}
