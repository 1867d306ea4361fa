// Command horusd is an illustrative HORUS process: it resolves a session,
// bootstraps the session's SHM directories and registry, declares a
// couple of demo nodes wired to a topic and a link, and runs them under
// the scheduler until SIGINT/SIGTERM.
//
// This is not a general-purpose CLI (spec's Non-goals exclude a
// user-facing launch tool); it exists to demonstrate end-to-end wiring of
// every package in this module.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/horus-robotics/horus/internal/fingerprint"
	"github.com/horus-robotics/horus/internal/heartbeat"
	"github.com/horus-robotics/horus/internal/horuslog"
	"github.com/horus-robotics/horus/internal/link"
	"github.com/horus-robotics/horus/internal/logbuffer"
	"github.com/horus-robotics/horus/internal/node"
	"github.com/horus-robotics/horus/internal/registry"
	"github.com/horus-robotics/horus/internal/ring"
	"github.com/horus-robotics/horus/internal/scheduler"
	"github.com/horus-robotics/horus/internal/session"
	"github.com/horus-robotics/horus/internal/shm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	sess := session.New()

	if err := shm.EnsureSessionDirs(sess.ShmRoot); err != nil {
		return err
	}

	log := horuslog.New(horuslog.Config{Level: sess.LogLevel, Component: "horusd", Colorize: true})
	log.Info("session started", horuslog.String("id", sess.ID), horuslog.String("root", sess.ShmRoot))

	buf, err := logbuffer.Open(sess.ShmRoot, 4096)
	if err != nil {
		return err
	}
	defer buf.Close()
	log.SetSink(buf)

	sched := scheduler.New()
	sched.SetLogSink(buf)

	reg, err := registry.Open(sess.ShmRoot)
	if err != nil {
		return err
	}

	imuFP := fingerprint.MustCompute(fingerprint.Schema{
		Name: "IMUSample",
		Fields: []fingerprint.Field{
			{Name: "timestamp_ns", Type: fingerprint.Uint64},
			{Name: "accel_x", Type: fingerprint.Float32},
			{Name: "accel_y", Type: fingerprint.Float32},
			{Name: "accel_z", Type: fingerprint.Float32},
		},
	})

	poseFP := fingerprint.MustCompute(fingerprint.Schema{
		Name: "Pose2D",
		Fields: []fingerprint.Field{
			{Name: "x", Type: fingerprint.Float32},
			{Name: "y", Type: fingerprint.Float32},
			{Name: "theta", Type: fingerprint.Float32},
		},
	})

	imuTopic, err := ring.Open(sess.ShmRoot, "sensor.imu", 64, 32, imuFP)
	if err != nil {
		return err
	}
	defer imuTopic.Close()
	if err := reg.Register(registry.Descriptor{Name: "sensor.imu", Kind: shm.KindRing, TypeFingerprint: imuFP, Capacity: 64, SlotSize: 32}); err != nil {
		return err
	}

	poseLink, err := link.Open(sess.ShmRoot, "estimator.pose", 16, poseFP)
	if err != nil {
		return err
	}
	defer poseLink.Close()
	if err := reg.Register(registry.Descriptor{Name: "estimator.pose", Kind: shm.KindLink, TypeFingerprint: poseFP, Capacity: 1, SlotSize: 16}); err != nil {
		return err
	}

	imuHB, err := heartbeat.Open(sess.ShmRoot, "imu_driver")
	if err != nil {
		return err
	}
	defer imuHB.Close()

	estimatorHB, err := heartbeat.Open(sess.ShmRoot, "pose_estimator")
	if err != nil {
		return err
	}
	defer estimatorHB.Close()

	if err := sched.Register(scheduler.Config{
		Node:      &imuDriverNode{topic: imuTopic},
		Priority:  0,
		RateHz:    200,
		Deadline:  2 * time.Millisecond,
		Heartbeat: imuHB,
	}); err != nil {
		return err
	}
	if err := sched.Register(scheduler.Config{
		Node:      &poseEstimatorNode{topic: imuTopic, pose: poseLink},
		Priority:  1,
		RateHz:    100,
		Deadline:  5 * time.Millisecond,
		Heartbeat: estimatorHB,
	}); err != nil {
		return err
	}

	if err := sched.Init(context.Background()); err != nil {
		return err
	}

	return sched.Run(context.Background(), time.Millisecond)
}

// imuDriverNode publishes synthetic IMU samples onto sensor.imu. Its
// heartbeat cell is fed by the scheduler after every successful tick
// (spec §4.5), not by the node itself.
type imuDriverNode struct {
	topic *ring.Ring
	seq   uint64
}

func (n *imuDriverNode) Name() string                  { return "imu_driver" }
func (n *imuDriverNode) Init(ctx context.Context) error { return nil }

func (n *imuDriverNode) Tick(tc *node.TickContext) error {
	n.seq++
	sample := make([]byte, 32)
	return n.topic.Publish(sample)
}

func (n *imuDriverNode) Shutdown(ctx context.Context) error { return nil }

// poseEstimatorNode consumes sensor.imu and publishes a pose estimate onto
// estimator.pose.
type poseEstimatorNode struct {
	topic  *ring.Ring
	pose   *link.Link
	cur    *ring.Cursor
	curSet bool
}

func (n *poseEstimatorNode) Name() string { return "pose_estimator" }

func (n *poseEstimatorNode) Init(ctx context.Context) error {
	n.cur = n.topic.NewCursor()
	n.curSet = true
	return nil
}

func (n *poseEstimatorNode) Tick(tc *node.TickContext) error {
	buf := make([]byte, 32)
	for {
		_, err := n.cur.Next(buf)
		if err != nil {
			break
		}
	}
	estimate := make([]byte, 16)
	return n.pose.Publish(uint64(os.Getpid()), estimate)
}

func (n *poseEstimatorNode) Shutdown(ctx context.Context) error { return nil }
