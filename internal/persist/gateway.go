// Package persist writes verified identifications: the photo goes to the blob store and
// the species record to the owner's collection. Only species.Verified values are accepted.
package persist

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/birdlens/birdlens/internal/blobstore"
	"github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/errors"
	"github.com/birdlens/birdlens/internal/logger"
	"github.com/birdlens/birdlens/internal/species"
)

const cleanupTimeout = 10 * time.Second

// Gateway is the single write path for collection images and records.
type Gateway struct {
	blobs   blobstore.Store
	entries collection.Store
	log     logger.Logger
	now     func() time.Time
	newID   func() string

	mu      sync.Mutex
	pending map[string]string // uploaded image URL -> blob key, until an entry claims it
}

// NewGateway wires a blob store and a collection store.
func NewGateway(blobs blobstore.Store, entries collection.Store, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.Global().Module("persist")
	}
	return &Gateway{
		blobs:   blobs,
		entries: entries,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		pending: make(map[string]string),
	}
}

// ImageKey returns the blob key for a new image in ownerID's collection; ext includes the dot.
func ImageKey(ownerID, id, ext string) string {
	return fmt.Sprintf("collections/%s/%s%s", ownerID, id, ext)
}

func checkVerified(v species.Verified, category errors.ErrorCategory) error {
	if !v.Valid() {
		return errors.Newf("identification has not been verified").
			Component("persist").
			Category(category).
			Context("reason", "unverified").
			Build()
	}
	return nil
}

func checkOwner(ownerID string, category errors.ErrorCategory) error {
	if strings.TrimSpace(ownerID) == "" || strings.ContainsAny(ownerID, "/\\") || ownerID == "." || ownerID == ".." {
		return errors.Newf("owner id %q cannot be resolved", ownerID).
			Component("persist").
			Category(category).
			Context("reason", "invalid_owner").
			Build()
	}
	return nil
}

// UploadImage stores the photo as submitted under a fresh key in ownerID's collection folder
// and returns its URL. format is the decoded image format and selects the content type and
// key extension. Failures carry CategoryUpload.
func (g *Gateway) UploadImage(ctx context.Context, v species.Verified, ownerID string, image []byte, format string) (string, error) {
	if err := checkVerified(v, errors.CategoryUpload); err != nil {
		return "", err
	}
	if err := checkOwner(ownerID, errors.CategoryUpload); err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", errors.Newf("image is empty").
			Component("persist").
			Category(errors.CategoryUpload).
			Build()
	}

	contentType, ext, ok := blobstore.ImageType(format)
	if !ok {
		return "", errors.Newf("unsupported image format %q", format).
			Component("persist").
			Category(errors.CategoryUpload).
			Build()
	}

	start := time.Now()
	key := ImageKey(ownerID, g.newID(), ext)
	url, err := g.blobs.Put(ctx, key, image, contentType)
	if err != nil {
		return "", errors.New(err).
			Component("persist").
			Category(errors.CategoryUpload).
			Context("store", g.blobs.Name()).
			Context("key", key).
			Timing("upload_image", time.Since(start)).
			Build()
	}

	g.log.WithContext(ctx).Debug("collection image uploaded",
		logger.String("store", g.blobs.Name()),
		logger.String("key", key),
		logger.String("content_type", contentType),
		logger.Int("size", len(image)),
		logger.Duration("elapsed", time.Since(start)))

	g.mu.Lock()
	g.pending[url] = key
	g.mu.Unlock()

	return url, nil
}

// SaveEntry writes the verified species into ownerID's collection under a fresh slot.
// imageURL may be empty. Failures carry CategoryPersist; when the entry cannot be written,
// an image this gateway uploaded for it is removed again.
func (g *Gateway) SaveEntry(ctx context.Context, v species.Verified, ownerID, imageURL string) (collection.Entry, error) {
	orphan := g.claim(imageURL)
	if err := checkVerified(v, errors.CategoryPersist); err != nil {
		g.discard(ctx, orphan)
		return collection.Entry{}, err
	}
	if err := checkOwner(ownerID, errors.CategoryPersist); err != nil {
		g.discard(ctx, orphan)
		return collection.Entry{}, err
	}

	rec := v.Record()
	entry := collection.Entry{
		SlotID:         g.newID(),
		OwnerID:        ownerID,
		CommonName:     rec.CommonName,
		ScientificName: rec.ScientificName,
		Family:         rec.Family,
		SpeciesCode:    v.SpeciesCode(),
		ImageURL:       imageURL,
		CreatedAt:      g.now(),
	}

	if err := g.entries.Save(ctx, &entry); err != nil {
		g.discard(ctx, orphan)
		return collection.Entry{}, errors.New(err).
			Component("persist").
			Category(errors.CategoryPersist).
			Context("slot_id", entry.SlotID).
			Build()
	}

	g.log.WithContext(ctx).Info("collection entry saved",
		logger.String("slot_id", entry.SlotID),
		logger.String("common_name", entry.CommonName),
		logger.Bool("has_image", imageURL != ""))

	return entry, nil
}

// claim returns the blob key behind an image URL uploaded by this gateway and forgets it.
func (g *Gateway) claim(imageURL string) string {
	if imageURL == "" {
		return ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	key := g.pending[imageURL]
	delete(g.pending, imageURL)
	return key
}

// discard deletes an uploaded image whose entry was never written. It runs even when ctx is
// already cancelled; a failed delete leaves the blob behind and is only logged.
func (g *Gateway) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	log := g.log.WithContext(ctx)
	if err := g.blobs.Delete(ctx, key); err != nil {
		log.Warn("orphaned collection image left in store",
			logger.String("store", g.blobs.Name()),
			logger.String("key", key),
			logger.Error(err))
		return
	}
	log.Info("orphaned collection image removed",
		logger.String("store", g.blobs.Name()),
		logger.String("key", key))
}
