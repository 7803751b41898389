package services

import (
	"bytes"
	"context"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	// Register decoders for the allowed upload formats. JPEG comes with
	// imaging; the rest register themselves against image.Decode.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// AssetSlot names the single-file binding within a user's namespace.
type AssetSlot string

const (
	SlotAvatar AssetSlot = "avatar"
	SlotCover  AssetSlot = "cover"
)

// SlotSize is the canonical target for one slot.
type SlotSize struct {
	Width  int
	Height int
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// AssetPipeline validates an uploaded image, transforms it to the slot's
// canonical dimensions and JPEG-encodes it, then atomically replaces the
// slot's current file. Readers never observe a half-written asset: a crash
// mid-transform leaves the previous asset intact.
type AssetPipeline struct {
	ns       *Namespace
	maxBytes int64
	sizes    map[AssetSlot]SlotSize
}

func NewAssetPipeline(ns *Namespace, maxBytes int64, avatarSize, coverW, coverH int) *AssetPipeline {
	return &AssetPipeline{
		ns:       ns,
		maxBytes: maxBytes,
		sizes: map[AssetSlot]SlotSize{
			SlotAvatar: {Width: avatarSize, Height: avatarSize},
			SlotCover:  {Width: coverW, Height: coverH},
		},
	}
}

// Ingest runs the full upload pipeline for one slot and returns the
// storage-root-relative path of the new asset. Any validation or processing
// failure leaves the prior asset untouched and cleans up temporary files.
func (p *AssetPipeline) Ingest(ctx context.Context, username string, slot AssetSlot, file multipart.File, header *multipart.FileHeader) (string, error) {
	size, ok := p.sizes[slot]
	if !ok {
		return "", &ProcessingError{Err: errUnknownSlot(slot)}
	}
	if file == nil || header == nil {
		return "", ErrNoFile
	}
	if header.Size > p.maxBytes {
		return "", ErrTooLarge
	}

	// The upload is already buffered by the HTTP layer; read it fully,
	// capping at the limit in case the declared size lies
	raw, err := io.ReadAll(io.LimitReader(file, p.maxBytes+1))
	if err != nil {
		return "", &StorageError{Op: "upload read", Err: err}
	}
	if int64(len(raw)) > p.maxBytes {
		return "", ErrTooLarge
	}
	if len(raw) == 0 {
		return "", ErrNoFile
	}

	// Both the declared type and the sniffed content must be allowed
	sniffed := http.DetectContentType(raw)
	if _, ok := allowedImageTypes[sniffed]; !ok {
		return "", ErrUnsupportedType
	}
	if declared := header.Header.Get("Content-Type"); declared != "" {
		if _, ok := allowedImageTypes[strings.ToLower(declared)]; !ok {
			return "", ErrUnsupportedType
		}
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = allowedImageTypes[sniffed]
	}
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedType
	}

	// Namespace is created lazily on first upload
	if err := p.ns.Ensure(username); err != nil {
		return "", err
	}
	dir := p.ns.Dir(username)

	// Spool the raw upload next to its destination; removed after the swap
	spool, err := os.CreateTemp(dir, "."+string(slot)+"-upload-*")
	if err != nil {
		return "", &StorageError{Op: "upload spool", Err: err}
	}
	spoolPath := spool.Name()
	_, werr := spool.Write(raw)
	spool.Close()
	if werr != nil {
		os.Remove(spoolPath)
		return "", &StorageError{Op: "upload spool", Err: werr}
	}

	canonical := string(slot) + ext
	outPath := filepath.Join(dir, canonical)
	tmpPath := outPath + ".tmp"

	if err := p.transform(ctx, raw, size, tmpPath); err != nil {
		os.Remove(spoolPath)
		os.Remove(tmpPath)
		return "", err
	}

	// Atomic swap: only after this succeeds may the caller update the
	// user's path field
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(spoolPath)
		os.Remove(tmpPath)
		return "", &StorageError{Op: "asset swap", Err: err}
	}

	os.Remove(spoolPath)
	p.removeStaleSiblings(dir, slot, canonical)

	return p.ns.PublicPath(username, canonical), nil
}

// transform decodes, center-crop resizes to the canonical dimensions and
// writes the result as JPEG quality 90 to tmpPath.
func (p *AssetPipeline) transform(ctx context.Context, raw []byte, size SlotSize, tmpPath string) error {
	if err := ctx.Err(); err != nil {
		return &ProcessingError{Err: err}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return &ProcessingError{Err: err}
	}

	resized := imaging.Fill(img, size.Width, size.Height, imaging.Center, imaging.Lanczos)

	out, err := os.Create(tmpPath)
	if err != nil {
		return &StorageError{Op: "asset write", Err: err}
	}
	if err := imaging.Encode(out, resized, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		out.Close()
		return &ProcessingError{Err: err}
	}
	return out.Close()
}

// removeStaleSiblings deletes slot files left behind under a different
// extension, keeping at most one live file per slot.
func (p *AssetPipeline) removeStaleSiblings(dir string, slot AssetSlot, keep string) {
	matches, err := filepath.Glob(filepath.Join(dir, string(slot)+".*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		name := filepath.Base(m)
		if name != keep && !strings.HasSuffix(name, ".tmp") {
			os.Remove(m)
		}
	}
}

type errUnknownSlot string

func (e errUnknownSlot) Error() string { return "unknown asset slot: " + string(e) }
