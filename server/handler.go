package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/beingmushfiq/Track-R/metrics"
	"github.com/beingmushfiq/Track-R/parser"
	"github.com/beingmushfiq/Track-R/queue"
	"go.uber.org/zap"
)

func (ts *TrackingServer) HandleConnection(conn net.Conn, p parser.Parser) {
	defer ts.wg.Done()
	sess := newSession(conn, p, ts.now())
	ts.sessions.Add(sess)
	metrics.TCPConnections.WithLabelValues(string(sess.Protocol)).Inc()
	metrics.ActiveSessions.Inc()
	defer ts.closeSession(sess)
	defer ts.recoverHandler(sess)

	select {
	case <-ts.quitChan:
		return
	default:
	}

	log := ts.log.With(zap.String("connection", sess.ID), zap.String("protocol", string(sess.Protocol)))
	log.Info("new connection to the server")
	buf := make([]byte, readBufferSize)
	for {
		if err := conn.SetReadDeadline(ts.now().Add(ts.cfg.IdleTimeout)); err != nil {
			log.Error("set read deadline failed", zap.Error(err))
			return
		}
		size, err := conn.Read(buf)
		if size > 0 {
			ts.handleData(sess, buf[:size])
		}
		if err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF):
				log.Info("connection closed by device")
			case errors.As(err, &netErr) && netErr.Timeout():
				log.Warn("connection idle timeout", zap.Duration("timeout", ts.cfg.IdleTimeout))
			case errors.Is(err, net.ErrClosed):
				log.Debug("connection closed")
			default:
				log.Error("read failed", zap.Error(err))
			}
			return
		}
	}
}

// handleData appends chunk to the session buffer and tries to decode it. A
// decoded frame clears the buffer; an incomplete one is kept until it grows
// past maxBufferSize.
func (ts *TrackingServer) handleData(sess *Session, chunk []byte) {
	now := ts.now()
	sess.touch(now)
	sess.buf = append(sess.buf, chunk...)

	start := time.Now()
	frame, err := sess.parser.Parse(sess.buf)
	metrics.ObserveParseLatency(string(sess.Protocol), start)
	if err != nil {
		ts.decodeFailed(sess, err)
		return
	}
	sess.buf = sess.buf[:0]
	metrics.FramesDecoded.WithLabelValues(string(sess.Protocol), string(frame.Type)).Inc()

	log := ts.log.With(zap.String("connection", sess.ID), zap.String("protocol", string(sess.Protocol)))
	if frame.DeviceID != "" {
		if sess.bind(frame.DeviceID) {
			log.Info("device identified", zap.String("imei", frame.DeviceID))
			ts.pushStatus(sess, frame.DeviceID, queue.StatusOnline, now)
		} else if bound := sess.DeviceID(); bound != frame.DeviceID {
			log.Warn("frame identifier differs from session binding",
				zap.String("imei", bound),
				zap.String("frameImei", frame.DeviceID),
			)
		}
	}

	if frame.Status != nil {
		sess.status = frame.Status
		fields := []zap.Field{
			zap.String("imei", sess.DeviceID()),
			zap.Int("battery", frame.Status.BatteryLevel),
			zap.Float64("voltage", frame.Status.BatteryVoltage),
			zap.Int("gsm", frame.Status.GSMSignal),
		}
		if frame.Ignition != nil {
			fields = append(fields, zap.Bool("ignition", *frame.Ignition))
		}
		log.Debug("terminal status", fields...)
	}

	if rec := parser.Build(sess.parser, frame, sess.DeviceID()); rec != nil {
		if rec.BatteryVoltage == nil && sess.status != nil {
			v := sess.status.BatteryVoltage
			rec.BatteryVoltage = &v
		}
		rec.ServerTime = now
		rec.ConnectionID = sess.ID
		rec.SourceAddress, rec.SourcePort = splitAddr(sess.conn.RemoteAddr())
		log.Info("position received",
			zap.String("imei", rec.DeviceID),
			zap.Float64("lat", rec.Latitude),
			zap.Float64("lon", rec.Longitude),
			zap.Float64("speed", rec.Speed),
		)
		if err := ts.publisher.PushGpsData(context.Background(), rec); err != nil {
			log.Warn("queue gps data failed", zap.Error(err))
		}
	} else if frame.Position != nil {
		log.Debug("position discarded by validation", zap.String("imei", frame.DeviceID))
	}

	if ack := sess.parser.Acknowledge(frame); len(ack) > 0 {
		if _, err := sess.conn.Write(ack); err != nil {
			log.Error("write acknowledgement failed", zap.Error(err))
		}
	}
}

func (ts *TrackingServer) decodeFailed(sess *Session, err error) {
	log := ts.log.With(zap.String("connection", sess.ID), zap.String("protocol", string(sess.Protocol)))
	if errors.Is(err, parser.ErrUnsupported) {
		// the envelope was complete, so waiting for more bytes cannot help
		metrics.DecodeFailures.WithLabelValues(string(sess.Protocol)).Inc()
		log.Debug("unsupported frame discarded", zap.Int("size", len(sess.buf)))
		sess.buf = sess.buf[:0]
		return
	}
	if !errors.Is(err, parser.ErrIncomplete) {
		metrics.DecodeFailures.WithLabelValues(string(sess.Protocol)).Inc()
	}
	if len(sess.buf) > maxBufferSize {
		metrics.BufferOverflows.WithLabelValues(string(sess.Protocol)).Inc()
		log.Warn("buffer overflow, clearing buffer", zap.Int("size", len(sess.buf)))
		sess.buf = nil
		return
	}
	log.Debug("frame not decoded yet", zap.Error(err), zap.Int("buffered", len(sess.buf)))
}

func (ts *TrackingServer) pushStatus(sess *Session, deviceID string, status queue.DeviceStatus, now time.Time) {
	ev := &queue.DeviceStatusEvent{
		DeviceID:     deviceID,
		Status:       status,
		ConnectionID: sess.ID,
		Protocol:     sess.Protocol,
		Timestamp:    now,
	}
	if err := ts.publisher.PushDeviceStatus(context.Background(), ev); err != nil {
		ts.log.Warn("queue device status failed",
			zap.String("connection", sess.ID),
			zap.String("imei", deviceID),
			zap.Error(err),
		)
		return
	}
	ts.log.Info("device status", zap.String("imei", deviceID), zap.String("status", string(status)))
}

// closeSession emits the offline event for a bound session and drops it from
// the registry. Only the session's own goroutine calls it.
func (ts *TrackingServer) closeSession(sess *Session) {
	_ = sess.conn.Close()
	if !ts.sessions.Remove(sess) {
		return
	}
	metrics.ActiveSessions.Dec()
	if id := sess.DeviceID(); id != "" {
		ts.pushStatus(sess, id, queue.StatusOffline, ts.now())
	}
	ts.log.Info("connection closed", zap.String("connection", sess.ID))
}

func (ts *TrackingServer) recoverHandler(sess *Session) {
	if r := recover(); r != nil {
		ts.log.Error("connection handler panic",
			zap.String("connection", sess.ID),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
		ts.fatal(fmt.Errorf("connection %s: panic: %v", sess.ID, r))
	}
}

func splitAddr(addr net.Addr) (string, int) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String(), a.Port
	case *net.UDPAddr:
		return a.IP.String(), a.Port
	}
	return addr.String(), 0
}
