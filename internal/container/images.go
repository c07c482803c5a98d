package container

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/docker/docker/api/types/image"

	"github.com/jbweber/anvil/internal/resource"
)

// ListImages returns every image the daemon holds, newest first.
func (a *Adapter) ListImages(ctx context.Context) ([]resource.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	summaries, err := a.cli.ImageList(ctx, image.ListOptions{All: true})
	if err != nil {
		return nil, translate(fmt.Errorf("failed to list images: %w", err))
	}

	images := make([]resource.Image, 0, len(summaries))
	for _, s := range summaries {
		tags := s.RepoTags
		if tags == nil {
			tags = []string{}
		}
		images = append(images, resource.Image{
			ID:      s.ID,
			Tags:    tags,
			Created: time.Unix(s.Created, 0).UTC(),
		})
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Created.After(images[j].Created)
	})
	return images, nil
}
