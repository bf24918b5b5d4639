// Package enginetest provides an in-memory Docker engine served over HTTP
// so the real SDK client can be exercised in tests.
package enginetest

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"evalgo.org/dockyard/models"
)

// Container is a container known to the daemon.
type Container struct {
	ID      string
	Name    string
	Image   string
	Command []string
	Running bool
	Memory  int64
	Tty     bool
	Logs    string
	// Ports maps "80/tcp" to the published host port.
	Ports       map[string]string
	Privileged  bool
	Volumes     []string
	VolumesFrom []string
	Created     int64
}

// Image is an image known to the daemon.
type Image struct {
	ID       string
	RepoTags []string
	Size     int64
	Created  int64
}

// Daemon is a fake engine. Zero or more behaviours can be toggled through
// its exported fields before the first request.
type Daemon struct {
	// ExitOnStart lists images whose containers stop right after start.
	ExitOnStart map[string]bool
	// PullErrors maps an image name to the error streamed back on pull.
	PullErrors map[string]string
	// Delay is applied to every request.
	Delay time.Duration

	mu         sync.Mutex
	containers map[string]*Container
	images     map[string]*Image
	calls      map[string]int
	userAgent  string
	nextPort   int
	server     *httptest.Server
}

// New starts a daemon and stops it when the test ends.
func New(t testing.TB) *Daemon {
	t.Helper()

	d := &Daemon{
		ExitOnStart: map[string]bool{},
		PullErrors:  map[string]string{},
		containers:  map[string]*Container{},
		images:      map[string]*Image{},
		calls:       map[string]int{},
		nextPort:    49153,
	}

	mux := http.NewServeMux()
	d.registerRoutes(mux)
	d.server = httptest.NewServer(d.middleware(mux))
	t.Cleanup(d.server.Close)

	return d
}

// Host returns a host record pointing at the daemon.
func (d *Daemon) Host(name string) *models.Host {
	u, _ := url.Parse(d.server.URL)
	hostname, port, _ := net.SplitHostPort(u.Host)
	p, _ := strconv.Atoi(port)

	return &models.Host{
		ID:       "host:" + name,
		Name:     name,
		Hostname: hostname,
		Port:     p,
		Enabled:  true,
	}
}

// UserAgent returns the User-Agent of the last request.
func (d *Daemon) UserAgent() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.userAgent
}

// Close stops serving. Subsequent requests fail to connect.
func (d *Daemon) Close() {
	d.server.Close()
}

// AddContainer registers c. An empty ID is derived from the name.
func (d *Daemon) AddContainer(c Container) *Container {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.ID == "" {
		c.ID = fakeID(c.Name)
	}
	if c.Created == 0 {
		c.Created = time.Now().Unix()
	}
	stored := c
	d.containers[c.ID] = &stored
	return &stored
}

// Vanish deletes a container without going through the API.
func (d *Daemon) Vanish(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.containers, id)
}

// Container returns a copy of the container with the given id.
func (d *Daemon) Container(id string) (Container, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.containers[id]
	if !ok {
		return Container{}, false
	}
	return *c, true
}

// Containers returns the number of containers the daemon holds.
func (d *Daemon) Containers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.containers)
}

// AddImage registers img. An empty ID is derived from the first tag.
func (d *Daemon) AddImage(img Image) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if img.ID == "" {
		img.ID = "sha256:" + fakeID(strings.Join(img.RepoTags, ","))
	}
	d.images[img.ID] = &img
}

// HasImage reports whether any image carries ref as a tag.
func (d *Daemon) HasImage(ref string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findImage(ref) != nil
}

// Calls returns how many requests matched the route pattern, e.g.
// "GET /containers/json".
func (d *Daemon) Calls(pattern string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[pattern]
}

var idSeq atomic.Int64

func fakeID(seed string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", seed, idSeq.Add(1))))
	return hex.EncodeToString(sum[:])
}

var versionPrefix = regexp.MustCompile(`^/v[0-9.]+`)

func (d *Daemon) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.Delay > 0 {
			time.Sleep(d.Delay)
		}
		d.mu.Lock()
		d.userAgent = r.UserAgent()
		d.mu.Unlock()
		r.URL.Path = versionPrefix.ReplaceAllString(r.URL.Path, "")
		w.Header().Set("Api-Version", "1.41")
		next.ServeHTTP(w, r)
	})
}

func (d *Daemon) registerRoutes(mux *http.ServeMux) {
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			d.mu.Lock()
			d.calls[pattern]++
			d.mu.Unlock()
			h(w, r)
		})
	}

	route("GET /_ping", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "OK") })

	route("GET /containers/json", d.handleContainerList)
	route("POST /containers/create", d.handleContainerCreate)
	route("GET /containers/{id}/json", d.handleContainerInspect)
	route("POST /containers/{id}/start", d.handleContainerStart)
	route("POST /containers/{id}/stop", d.handleContainerStop)
	route("POST /containers/{id}/restart", d.handleContainerRestart)
	route("POST /containers/{id}/kill", d.handleContainerKill)
	route("DELETE /containers/{id}", d.handleContainerRemove)
	route("GET /containers/{id}/logs", d.handleContainerLogs)

	route("GET /images/json", d.handleImageList)
	route("POST /images/create", d.handleImagePull)
	route("DELETE /images/{name...}", d.handleImageRemove)
	route("POST /build", d.handleBuild)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"message": fmt.Sprintf(format, args...)})
}

// lookup resolves a full or prefix id, or a name. Caller holds d.mu.
func (d *Daemon) lookup(ref string) *Container {
	if c, ok := d.containers[ref]; ok {
		return c
	}
	for id, c := range d.containers {
		if strings.HasPrefix(id, ref) || c.Name == ref {
			return c
		}
	}
	return nil
}

func (d *Daemon) handleContainerList(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all")
	includeStopped := all == "1" || all == "true"

	d.mu.Lock()
	defer d.mu.Unlock()

	out := []map[string]any{}
	for _, c := range d.sortedContainers() {
		if !c.Running && !includeStopped {
			continue
		}
		state, status := "exited", "Exited (0)"
		if c.Running {
			state, status = "running", "Up"
		}
		var ports []map[string]any
		for spec, hostPort := range c.Ports {
			private, proto, _ := strings.Cut(spec, "/")
			pp, _ := strconv.Atoi(private)
			hp, _ := strconv.Atoi(hostPort)
			ports = append(ports, map[string]any{
				"IP": "0.0.0.0", "PrivatePort": pp, "PublicPort": hp, "Type": proto,
			})
		}
		out = append(out, map[string]any{
			"Id":      c.ID,
			"Names":   []string{"/" + c.Name},
			"Image":   c.Image,
			"Command": strings.Join(c.Command, " "),
			"Created": c.Created,
			"State":   state,
			"Status":  status,
			"Ports":   ports,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Daemon) sortedContainers() []*Container {
	list := make([]*Container, 0, len(d.containers))
	for _, c := range d.containers {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

type createBody struct {
	Image        string
	Cmd          []string
	Tty          bool
	ExposedPorts map[string]struct{}
	Volumes      map[string]struct{}
	HostConfig   struct {
		Memory       int64
		Privileged   bool
		VolumesFrom  []string
		PortBindings map[string][]struct{ HostIp, HostPort string }
	}
}

func (d *Daemon) handleContainerCreate(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: %v", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.findImage(body.Image) == nil {
		writeError(w, http.StatusNotFound, "No such image: %s", body.Image)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = fmt.Sprintf("container_%d", len(d.containers)+1)
	}
	c := &Container{
		ID:          fakeID(name),
		Name:        name,
		Image:       body.Image,
		Command:     body.Cmd,
		Tty:         body.Tty,
		Memory:      body.HostConfig.Memory,
		Privileged:  body.HostConfig.Privileged,
		VolumesFrom: body.HostConfig.VolumesFrom,
		Ports:       map[string]string{},
		Created:     time.Now().Unix(),
	}
	for v := range body.Volumes {
		c.Volumes = append(c.Volumes, v)
	}
	sort.Strings(c.Volumes)
	for spec := range body.ExposedPorts {
		c.Ports[spec] = ""
	}
	d.containers[c.ID] = c

	writeJSON(w, http.StatusCreated, map[string]any{"Id": c.ID, "Warnings": []string{}})
}

func (d *Daemon) handleContainerInspect(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.lookup(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "No such container: %s", r.PathValue("id"))
		return
	}

	ports := map[string]any{}
	for spec, hostPort := range c.Ports {
		if hostPort == "" {
			ports[spec] = nil
			continue
		}
		ports[spec] = []map[string]string{{"HostIp": "0.0.0.0", "HostPort": hostPort}}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"Id":    c.ID,
		"Name":  "/" + c.Name,
		"State": map[string]any{"Running": c.Running, "Status": map[bool]string{true: "running", false: "exited"}[c.Running]},
		"Config": map[string]any{
			"Image":  c.Image,
			"Cmd":    c.Command,
			"Tty":    c.Tty,
			"Memory": c.Memory,
		},
		"HostConfig": map[string]any{
			"Memory":      c.Memory,
			"Privileged":  c.Privileged,
			"VolumesFrom": c.VolumesFrom,
		},
		"NetworkSettings": map[string]any{"Ports": ports},
	})
}

func (d *Daemon) handleContainerStart(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.lookup(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "No such container: %s", r.PathValue("id"))
		return
	}
	d.start(c)
	w.WriteHeader(http.StatusNoContent)
}

// start runs c and publishes its ports on fresh host ports. Caller holds d.mu.
func (d *Daemon) start(c *Container) {
	c.Running = !d.ExitOnStart[c.Image]
	for spec := range c.Ports {
		if c.Running {
			c.Ports[spec] = strconv.Itoa(d.nextPort)
			d.nextPort++
		} else {
			c.Ports[spec] = ""
		}
	}
}

func (d *Daemon) handleContainerStop(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.lookup(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "No such container: %s", r.PathValue("id"))
		return
	}
	if !c.Running {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	c.Running = false
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleContainerRestart(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.lookup(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "No such container: %s", r.PathValue("id"))
		return
	}
	d.start(c)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleContainerKill(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.lookup(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "No such container: %s", r.PathValue("id"))
		return
	}
	if !c.Running {
		writeError(w, http.StatusConflict, "Container %s is not running", c.ID)
		return
	}
	c.Running = false
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleContainerRemove(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.lookup(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "No such container: %s", r.PathValue("id"))
		return
	}
	if c.Running {
		writeError(w, http.StatusConflict, "You cannot remove a running container %s", c.ID)
		return
	}
	delete(d.containers, c.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	c := d.lookup(r.PathValue("id"))
	var logs string
	var tty bool
	if c != nil {
		logs, tty = c.Logs, c.Tty
	}
	d.mu.Unlock()

	if c == nil {
		writeError(w, http.StatusNotFound, "No such container: %s", r.PathValue("id"))
		return
	}

	if tty {
		w.Header().Set("Content-Type", "application/vnd.docker.raw-stream")
		_, _ = io.WriteString(w, logs)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.docker.multiplexed-stream")
	for _, line := range strings.SplitAfter(logs, "\n") {
		if line == "" {
			continue
		}
		header := make([]byte, 8)
		header[0] = 1
		binary.BigEndian.PutUint32(header[4:], uint32(len(line)))
		_, _ = w.Write(header)
		_, _ = io.WriteString(w, line)
	}
}

func (d *Daemon) handleImageList(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.images))
	for id := range d.images {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := []map[string]any{}
	for _, id := range ids {
		img := d.images[id]
		out = append(out, map[string]any{
			"Id":          img.ID,
			"ParentId":    "",
			"RepoTags":    img.RepoTags,
			"RepoDigests": []string{},
			"Created":     img.Created,
			"Size":        img.Size,
			"SharedSize":  -1,
			"Containers":  -1,
			"Labels":      map[string]string{},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// findImage matches ref against tags, with and without the implicit
// "latest" tag. Caller holds d.mu.
func (d *Daemon) findImage(ref string) *Image {
	if img, ok := d.images[ref]; ok {
		return img
	}
	candidates := []string{ref}
	if !strings.Contains(ref[strings.LastIndex(ref, "/")+1:], ":") {
		candidates = append(candidates, ref+":latest")
	}
	for _, img := range d.images {
		for _, tag := range img.RepoTags {
			for _, c := range candidates {
				if tag == c {
					return img
				}
			}
		}
	}
	return nil
}

func (d *Daemon) handleImagePull(w http.ResponseWriter, r *http.Request) {
	name := familiarName(r.URL.Query().Get("fromImage"))
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		tag = "latest"
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(map[string]string{"status": "Pulling from " + name, "id": tag})

	d.mu.Lock()
	msg, fail := d.PullErrors[name]
	d.mu.Unlock()
	if fail {
		_ = enc.Encode(map[string]any{"errorDetail": map[string]string{"message": msg}, "error": msg})
		return
	}

	d.AddImage(Image{RepoTags: []string{name + ":" + tag}, Created: time.Now().Unix()})
	_ = enc.Encode(map[string]string{"status": "Status: Downloaded newer image for " + name + ":" + tag})
}

// familiarName strips the default registry the SDK adds to short names.
func familiarName(name string) string {
	name = strings.TrimPrefix(name, "docker.io/")
	return strings.TrimPrefix(name, "library/")
}

func (d *Daemon) handleImageRemove(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img := d.findImage(r.PathValue("name"))
	if img == nil {
		writeError(w, http.StatusNotFound, "No such image: %s", r.PathValue("name"))
		return
	}
	delete(d.images, img.ID)
	writeJSON(w, http.StatusOK, []map[string]string{{"Deleted": img.ID}})
}

func (d *Daemon) handleBuild(w http.ResponseWriter, r *http.Request) {
	dockerfile := r.URL.Query().Get("dockerfile")
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	tags := r.URL.Query()["t"]

	found, err := tarContains(r.Body, dockerfile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid build context: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	if !found {
		msg := "Cannot locate specified Dockerfile: " + dockerfile
		_ = enc.Encode(map[string]any{"errorDetail": map[string]string{"message": msg}, "error": msg})
		return
	}

	d.AddImage(Image{RepoTags: tags, Created: time.Now().Unix()})
	_ = enc.Encode(map[string]string{"stream": "Successfully built\n"})
}

func tarContains(r io.Reader, name string) (bool, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if strings.TrimPrefix(hdr.Name, "./") == name {
			return true, nil
		}
	}
}
