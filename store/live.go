package store

import (
	"context"
	"encoding/json"
	"time"

	"valencia-data-detective/datex"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// liveChannel is the Redis pub/sub channel the read API relays to
	// websocket clients.
	liveChannel = "valencia:live:traffic"
	// mqttTopicPrefix is completed with the measurement point id.
	mqttTopicPrefix = "valencia/traffic/"
)

// LiveMeasurement is the wire form of one fresh traffic reading.
type LiveMeasurement struct {
	TS          string   `json:"ts"`
	PuntoMedida string   `json:"punto_medida"`
	Intensidad  *float64 `json:"intensidad,omitempty"`
	Velocidad   *float64 `json:"velocidad,omitempty"`
	Ocupacion   *float64 `json:"ocupacion,omitempty"`
}

// LivePublisher fans fresh measurements out to the live consumers: a
// Redis channel for the API websocket and one MQTT topic per
// measurement point. Either sink may be absent; a publisher with no
// sinks swallows everything.
type LivePublisher struct {
	redis *redis.Client
	mqtt  mqtt.Client
}

// NewLivePublisher connects whichever sinks have a URL configured. A
// sink that fails to connect is logged and skipped rather than
// aborting the capture daemon.
func NewLivePublisher(ctx context.Context, redisURL, mqttURL string) *LivePublisher {
	pub := &LivePublisher{}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Warnf("invalid REDIS_URL, skipping Redis: %v", err)
		} else {
			client := redis.NewClient(opts)
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warnf("redis ping failed, skipping Redis: %v", err)
				client.Close()
			} else {
				log.Infof("live publisher connected to redis")
				pub.redis = client
			}
		}
	}

	if mqttURL != "" {
		opts := mqtt.NewClientOptions()
		opts.AddBroker(mqttURL)
		opts.SetClientID("capture-" + time.Now().Format("20060102150405"))
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectRetryInterval(2 * time.Second)
		opts.OnConnectionLost = func(client mqtt.Client, err error) {
			log.Warnf("mqtt connection lost: %v", err)
		}

		client := mqtt.NewClient(opts)
		token := client.Connect()
		if token.WaitTimeout(10*time.Second) && token.Error() == nil {
			log.Infof("live publisher connected to mqtt")
			pub.mqtt = client
		} else {
			log.Warnf("mqtt connection failed, skipping MQTT: %v", token.Error())
		}
	}

	return pub
}

// Active reports whether at least one sink is connected.
func (p *LivePublisher) Active() bool {
	return p.redis != nil || p.mqtt != nil
}

// PublishMeasurements sends each measurement to every connected sink.
// Publish failures are logged and counted, never fatal: the snapshot
// on disk is the source of record, the live feed is best effort.
func (p *LivePublisher) PublishMeasurements(ctx context.Context, measurements []datex.Measurement) int {
	if !p.Active() {
		return 0
	}

	published := 0
	for _, m := range measurements {
		live := LiveMeasurement{
			TS:          m.Time.UTC().Format(time.RFC3339),
			PuntoMedida: m.PointID,
		}
		if m.HasIntensity {
			v := m.Intensity
			live.Intensidad = &v
		}
		if m.HasSpeed {
			v := m.Speed
			live.Velocidad = &v
		}
		if m.HasOccupancy {
			v := m.Occupancy
			live.Ocupacion = &v
		}

		data, err := json.Marshal(live)
		if err != nil {
			log.Warnf("live marshal failed for punto=%s: %v", m.PointID, err)
			continue
		}

		ok := true
		if p.redis != nil {
			if err := p.redis.Publish(ctx, liveChannel, data).Err(); err != nil {
				log.Warnf("redis publish failed for punto=%s: %v", m.PointID, err)
				ok = false
			}
		}
		if p.mqtt != nil {
			token := p.mqtt.Publish(mqttTopicPrefix+m.PointID, 0, false, data)
			if token.WaitTimeout(5*time.Second) && token.Error() != nil {
				log.Warnf("mqtt publish failed for punto=%s: %v", m.PointID, token.Error())
				ok = false
			}
		}
		if ok {
			published++
		}
	}
	return published
}

// Close disconnects whatever is connected.
func (p *LivePublisher) Close() {
	if p.redis != nil {
		p.redis.Close()
	}
	if p.mqtt != nil {
		p.mqtt.Disconnect(250)
	}
}
