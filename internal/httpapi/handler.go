package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jbweber/anvil/internal/lifecycle"
	"github.com/jbweber/anvil/internal/resource"
)

// maxXMLBody bounds a domain XML upload.
const maxXMLBody = 1 << 20

// API binds lifecycle operations to routes.
type API struct {
	svc    lifecycle.Service
	health HealthRecorder
	logger *slog.Logger
}

// RegisterRoutes mounts every resource route on r.
func (a *API) RegisterRoutes(r gin.IRoutes) {
	r.GET("/resources", a.listResources)
	r.GET("/resources/:id", a.getResource)
	r.PUT("/resources/:id/start", a.start)
	r.PUT("/resources/:id/stop", a.stop)
	r.PUT("/resources/:id/restart", a.restart)
	r.PUT("/resources/:id/shutdown", a.shutdown)
	r.DELETE("/resources/:id", a.remove)

	r.PUT("/resources/:id/snapshot", a.createSnapshot)
	r.GET("/resources/:id/snapshots", a.listSnapshots)
	r.DELETE("/resources/:id/snapshots/:name", a.deleteSnapshot)
	r.DELETE("/resources/:id/volume", a.deleteVolume)

	r.DELETE("/containers/prune", a.prune)
	r.POST("/containers/run", a.runContainer)
	r.GET("/images", a.listImages)

	r.POST("/vms", a.runVMFromSpec)
	r.POST("/vms/xml", a.runVMFromXML)
	r.GET("/volumes", a.listVolumes)
	r.POST("/volumes", a.createVolume)
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(c *gin.Context, key string) (bool, error) {
	v := c.Query(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, resource.ArgumentNotFound(fmt.Sprintf("invalid value %q for %s", v, key))
	}
	return b, nil
}

// bindJSON decodes an optional JSON body into v. An empty body leaves v
// untouched.
func bindJSON(c *gin.Context, v any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return resource.ArgumentNotFound(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func (a *API) healthz(c *gin.Context) {
	status := http.StatusOK
	out := make(map[string]string)
	for kind, err := range a.svc.Health(c.Request.Context()) {
		if a.health != nil {
			a.health.SetBackendUp(kind, err == nil)
		}
		if err != nil {
			a.logger.Warn("backend unhealthy", "kind", kind, "error", err)
			status = http.StatusServiceUnavailable
			out[string(kind)] = err.Error()
			continue
		}
		out[string(kind)] = "ok"
	}
	c.JSON(status, response{Ok: status == http.StatusOK, Data: out})
}

func (a *API) listResources(c *gin.Context) {
	rs, err := a.svc.List(c.Request.Context(), resource.Kind(c.Query("type")))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, rs)
}

func (a *API) getResource(c *gin.Context) {
	withSnapshots, err := boolQuery(c, "snapshots")
	if err != nil {
		fail(c, err)
		return
	}

	r, err := a.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	d := resource.Detail{Resource: r}
	if withSnapshots && r.Kind == resource.KindVM {
		d.Snapshots, err = a.svc.ListSnapshots(c.Request.Context(), r.ID)
		if err != nil {
			fail(c, err)
			return
		}
	}
	ok(c, http.StatusOK, d)
}

func (a *API) start(c *gin.Context) {
	res, err := a.svc.Start(c.Request.Context(), c.Param("id"), resource.StartOptions{
		RevertSnapshot: c.Query("revertSnapshot"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (a *API) stop(c *gin.Context) {
	res, err := a.svc.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (a *API) restart(c *gin.Context) {
	res, err := a.svc.Restart(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (a *API) shutdown(c *gin.Context) {
	var opts resource.ShutdownOptions
	var err error
	if opts.Save, err = boolQuery(c, "save"); err != nil {
		fail(c, err)
		return
	}
	if opts.Force, err = boolQuery(c, "force"); err != nil {
		fail(c, err)
		return
	}

	res, err := a.svc.Shutdown(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (a *API) remove(c *gin.Context) {
	opts := resource.RemoveOptions{DeleteSnapshot: c.Query("deleteSnapshot")}
	var err error
	if opts.Force, err = boolQuery(c, "force"); err != nil {
		fail(c, err)
		return
	}
	if opts.DeleteVolume, err = boolQuery(c, "deleteVolume"); err != nil {
		fail(c, err)
		return
	}

	res, err := a.svc.Remove(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (a *API) createSnapshot(c *gin.Context) {
	res, err := a.svc.CreateSnapshot(c.Request.Context(), c.Param("id"), c.Query("name"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

func (a *API) listSnapshots(c *gin.Context) {
	snaps, err := a.svc.ListSnapshots(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, snaps)
}

func (a *API) deleteSnapshot(c *gin.Context) {
	res, err := a.svc.DeleteSnapshot(c.Request.Context(), c.Param("id"), c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (a *API) deleteVolume(c *gin.Context) {
	res, err := a.svc.DeleteVolume(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (a *API) prune(c *gin.Context) {
	report, err := a.svc.PruneContainers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}

func (a *API) runContainer(c *gin.Context) {
	var opts resource.RunOptions
	if err := bindJSON(c, &opts); err != nil {
		fail(c, err)
		return
	}

	res, err := a.svc.RunContainer(c.Request.Context(), c.Query("image"), opts)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

func (a *API) listImages(c *gin.Context) {
	images, err := a.svc.ListImages(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, images)
}

func (a *API) runVMFromSpec(c *gin.Context) {
	var spec resource.VMSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		fail(c, resource.ArgumentNotFound(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	res, err := a.svc.RunVMFromSpec(c.Request.Context(), spec)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

func (a *API) runVMFromXML(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxXMLBody+1))
	if err != nil {
		fail(c, resource.ArgumentNotFound(fmt.Sprintf("failed to read request body: %v", err)))
		return
	}
	if len(body) > maxXMLBody {
		fail(c, resource.ArgumentNotFound("domain XML exceeds 1 MiB"))
		return
	}

	res, err := a.svc.RunVMFromXML(c.Request.Context(), string(body))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

func (a *API) listVolumes(c *gin.Context) {
	vols, err := a.svc.ListVolumes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, vols)
}

func (a *API) createVolume(c *gin.Context) {
	var req resource.VolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, resource.ArgumentNotFound(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	res, err := a.svc.CreateVolume(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}
