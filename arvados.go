// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"git.arvados.org/arvados.git/lib/cmd"
	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/websocket"
)

type eventMessage struct {
	ObjectUUID string `json:"object_uuid"`
	EventType  string `json:"event_type"`
	Properties struct {
		Text string
	}
}

// eventStream delivers websocket events about a single container to
// ch until Close is called. It reconnects after errors.
type eventStream struct {
	client    *arvados.Client
	uuid      string
	ch        chan eventMessage
	closed    chan struct{}
	closeOnce sync.Once
}

func listenEvents(client *arvados.Client, uuid string) *eventStream {
	es := &eventStream{
		client: client,
		uuid:   uuid,
		ch:     make(chan eventMessage),
		closed: make(chan struct{}),
	}
	go es.run()
	return es
}

func (es *eventStream) Close() {
	es.closeOnce.Do(func() { close(es.closed) })
}

func (es *eventStream) run() {
	for {
		err := es.listen()
		select {
		case <-es.closed:
			return
		case <-time.After(5 * time.Second):
			log.Warnf("event stream: %s (reconnecting)", err)
		}
	}
}

func (es *eventStream) listen() error {
	var cluster arvados.Cluster
	err := es.client.RequestAndDecode(&cluster, "GET", arvados.EndpointConfigGet.Path, nil, nil)
	if err != nil {
		return fmt.Errorf("error getting cluster config: %w", err)
	}
	wsURL := cluster.Services.Websocket.ExternalURL
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	wsURL.Path = "/websocket"
	wsURL.RawQuery = "api_token=" + es.client.AuthToken
	conn, err := websocket.Dial(wsURL.String(), "", cluster.Services.Controller.ExternalURL.String())
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-es.closed
		conn.Close()
	}()
	err = json.NewEncoder(conn).Encode(map[string]interface{}{
		"method": "subscribe",
		"filters": [][]interface{}{
			{"object_uuid", "=", es.uuid},
			{"event_type", "in", []string{"stderr", "crunch-run", "update"}},
		},
	})
	if err != nil {
		return err
	}
	dec := json.NewDecoder(conn)
	for {
		var msg eventMessage
		if err := dec.Decode(&msg); err != nil {
			return err
		}
		if msg.ObjectUUID != es.uuid {
			continue
		}
		select {
		case es.ch <- msg:
		case <-es.closed:
			return nil
		}
	}
}

var refreshInterval = 5 * time.Second

// arvadosContainerRunner runs a hapreduce subcommand in an Arvados
// container and waits for it to finish.
type arvadosContainerRunner struct {
	Client      *arvados.Client
	Name        string
	OutputName  string
	ProjectUUID string
	VCPUs       int
	RAM         int64
	Prog        string // if empty, upload and run /proc/self/exe
	Args        []string
	Mounts      map[string]map[string]interface{}
	Priority    int
}

func (runner *arvadosContainerRunner) Run() (string, error) {
	return runner.RunContext(context.Background())
}

// RunContext submits a container request and returns the output
// collection UUID once the container completes successfully. If ctx
// is cancelled first, the request is cancelled too.
func (runner *arvadosContainerRunner) RunContext(ctx context.Context) (string, error) {
	if runner.ProjectUUID == "" {
		return "", errors.New("cannot run arvados container: -project not provided")
	}
	mounts := map[string]map[string]interface{}{
		"/mnt/output": {
			"kind":     "collection",
			"writable": true,
		},
	}
	for path, mnt := range runner.Mounts {
		mounts[path] = mnt
	}
	prog := runner.Prog
	if prog == "" {
		prog = "/mnt/cmd/hapreduce"
		cmdUUID, err := runner.makeCommandCollection()
		if err != nil {
			return "", err
		}
		mounts["/mnt/cmd"] = map[string]interface{}{
			"kind": "collection",
			"uuid": cmdUUID,
		}
	}
	priority := runner.Priority
	if priority < 1 {
		priority = 500
	}
	var outname interface{}
	if runner.OutputName != "" {
		outname = runner.OutputName
	}

	var cr arvados.ContainerRequest
	err := runner.Client.RequestAndDecodeContext(ctx, &cr, "POST", "arvados/v1/container_requests", nil, map[string]interface{}{
		"container_request": map[string]interface{}{
			"owner_uuid":      runner.ProjectUUID,
			"name":            runner.Name,
			"container_image": runtimeImage,
			"command":         append([]string{prog}, runner.Args...),
			"mounts":          mounts,
			"use_existing":    true,
			"output_path":     "/mnt/output",
			"output_name":     outname,
			"runtime_constraints": arvados.RuntimeConstraints{
				VCPUs:        runner.VCPUs,
				RAM:          runner.RAM,
				KeepCacheRAM: 1 << 26,
			},
			"priority":            priority,
			"state":               arvados.ContainerRequestStateCommitted,
			"container_count_max": 1,
		},
	})
	if err != nil {
		return "", err
	}
	log.Printf("container request UUID: %s", cr.UUID)

	var events *eventStream
	defer func() {
		if events != nil {
			events.Close()
		}
	}()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	lastState := cr.State
	for cr.State != arvados.ContainerRequestStateFinal {
		if events == nil && cr.ContainerUUID != "" {
			log.Printf("container UUID: %s", cr.ContainerUUID)
			events = listenEvents(runner.Client, cr.ContainerUUID)
		}
		var evch <-chan eventMessage
		if events != nil {
			evch = events.ch
		}
		select {
		case <-ctx.Done():
			err := runner.Client.RequestAndDecode(&cr, "PATCH", "arvados/v1/container_requests/"+cr.UUID, nil, map[string]interface{}{
				"container_request": map[string]interface{}{"priority": 0},
			})
			if err != nil {
				log.Errorf("error cancelling container request %s: %s", cr.UUID, err)
			}
			return "", ctx.Err()
		case msg := <-evch:
			if msg.EventType != "update" {
				for _, line := range strings.Split(strings.TrimRight(msg.Properties.Text, "\n"), "\n") {
					if line != "" {
						log.Print(line)
					}
				}
				continue
			}
		case <-ticker.C:
		}
		err = runner.Client.RequestAndDecodeContext(ctx, &cr, "GET", "arvados/v1/container_requests/"+cr.UUID, nil, nil)
		if err != nil {
			log.Printf("error getting container request: %s", err)
			continue
		}
		if cr.State != lastState {
			log.Printf("container request state: %s", cr.State)
			lastState = cr.State
		}
	}

	var ctr arvados.Container
	err = runner.Client.RequestAndDecodeContext(ctx, &ctr, "GET", "arvados/v1/containers/"+cr.ContainerUUID, nil, nil)
	if err != nil {
		return "", err
	} else if ctr.State != arvados.ContainerStateComplete {
		return "", fmt.Errorf("container did not complete: %s", ctr.State)
	} else if ctr.ExitCode != 0 {
		return "", fmt.Errorf("container exited %d", ctr.ExitCode)
	}
	return cr.OutputUUID, nil
}

var collectionInPathRe = regexp.MustCompile(`^(.*/)?([0-9a-f]{32}\+[0-9]+|[0-9a-z]{5}-[0-9a-z]{5}-[0-9a-z]{15})(/.*)?$`)

// TranslatePaths replaces each collection path with the corresponding
// path inside the container, and adds the collection mounts. Empty
// paths and "-" are left alone.
func (runner *arvadosContainerRunner) TranslatePaths(paths ...*string) error {
	if runner.Mounts == nil {
		runner.Mounts = make(map[string]map[string]interface{})
	}
	for _, path := range paths {
		if *path == "" || *path == "-" {
			continue
		}
		m := collectionInPathRe.FindStringSubmatch(*path)
		if m == nil {
			return fmt.Errorf("cannot find collection uuid or portable data hash in path: %q", *path)
		}
		collID := m[2]
		mnt := "/mnt/" + collID
		if _, ok := runner.Mounts[mnt]; !ok {
			if len(collID) == 27 {
				runner.Mounts[mnt] = map[string]interface{}{"kind": "collection", "uuid": collID}
			} else {
				runner.Mounts[mnt] = map[string]interface{}{"kind": "collection", "portable_data_hash": collID}
			}
		}
		*path = mnt + m[3]
	}
	return nil
}

var mtxMakeCommandCollection sync.Mutex

// makeCommandCollection returns the UUID of a collection containing
// the running executable, creating one if the project doesn't have
// one with the same content hash yet.
func (runner *arvadosContainerRunner) makeCommandCollection() (string, error) {
	mtxMakeCommandCollection.Lock()
	defer mtxMakeCommandCollection.Unlock()
	exe, err := os.ReadFile("/proc/self/exe")
	if err != nil {
		return "", err
	}
	hash := fmt.Sprintf("%x", blake2b.Sum256(exe))
	cname := "hapreduce " + cmd.Version.String()
	var existing arvados.CollectionList
	err = runner.Client.RequestAndDecode(&existing, "GET", "arvados/v1/collections", nil, arvados.ListOptions{
		Limit: 1,
		Count: "none",
		Filters: []arvados.Filter{
			{Attr: "name", Operator: "=", Operand: cname},
			{Attr: "owner_uuid", Operator: "=", Operand: runner.ProjectUUID},
			{Attr: "properties.blake2b", Operator: "=", Operand: hash},
		},
	})
	if err != nil {
		return "", err
	}
	if len(existing.Items) > 0 {
		log.Printf("using hapreduce binary in existing collection %s", existing.Items[0].UUID)
		return existing.Items[0].UUID, nil
	}

	ac, err := arvadosclient.New(runner.Client)
	if err != nil {
		return "", err
	}
	var coll arvados.Collection
	fs, err := coll.FileSystem(runner.Client, keepclient.New(ac))
	if err != nil {
		return "", err
	}
	f, err := fs.OpenFile("hapreduce", os.O_CREATE|os.O_WRONLY, 0777)
	if err != nil {
		return "", err
	}
	if _, err = f.Write(exe); err != nil {
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	mtxt, err := fs.MarshalManifest(".")
	if err != nil {
		return "", err
	}
	err = runner.Client.RequestAndDecode(&coll, "POST", "arvados/v1/collections", nil, map[string]interface{}{
		"collection": map[string]interface{}{
			"owner_uuid":    runner.ProjectUUID,
			"manifest_text": mtxt,
			"name":          cname,
			"properties":    map[string]interface{}{"blake2b": hash},
		},
	})
	if err != nil {
		return "", err
	}
	log.Printf("stored hapreduce binary in new collection %s", coll.UUID)
	return coll.UUID, nil
}

// zopen returns a reader for the given file, using the arvados API
// instead of arv-mount/fuse where applicable, and transparently
// decompressing the input if fnm ends with ".gz".
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := open(fnm)
	if err != nil || !strings.HasSuffix(fnm, ".gz") {
		return f, err
	}
	rdr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4*1024*1024))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return gzipr{rdr, f}, nil
}

// gzipr closes both the decompressor and the underlying file.
type gzipr struct {
	io.ReadCloser
	io.Closer
}

func (gr gzipr) Close() error {
	e1 := gr.ReadCloser.Close()
	e2 := gr.Closer.Close()
	if e1 != nil {
		return e1
	}
	return e2
}

var (
	siteFS    arvados.CustomFileSystem
	siteFSMtx sync.Mutex
)

// open opens a local file, or, if ARVADOS_API_HOST is set and fnm
// refers to a collection, reads it through the Arvados site
// filesystem.
func open(fnm string) (io.ReadCloser, error) {
	if os.Getenv("ARVADOS_API_HOST") == "" {
		return os.Open(fnm)
	}
	m := collectionInPathRe.FindStringSubmatch(fnm)
	if m == nil {
		return os.Open(fnm)
	}
	siteFSMtx.Lock()
	defer siteFSMtx.Unlock()
	if siteFS == nil {
		log.Info("setting up Arvados client")
		client := arvados.NewClientFromEnv()
		ac, err := arvadosclient.New(client)
		if err != nil {
			return nil, err
		}
		ac.Client = arvados.DefaultSecureClient
		kc := keepclient.New(ac)
		kc.HTTPClient = arvados.DefaultSecureClient
		siteFS = client.SiteFileSystem(kc)
	}
	log.Infof("reading %q from %s using Arvados client", m[3], m[2])
	return siteFS.Open("by_id/" + m[2] + m[3])
}
