package fstree

import (
	"context"
	"os"
)

// BlobPutter is the subset of the client's RPC surface the uploader
// needs: push bytes, learn whether they were already stored.
type BlobPutter interface {
	PutBlob(ctx context.Context, data []byte) (hash []byte, wasNew bool, err error)
	AttachFS(ctx context.Context, turnID uint64, rootHash []byte) error
}

// UploadResult tallies what an upload pushed versus deduplicated.
type UploadResult struct {
	TreesUploaded    int
	TreesSkipped     int
	FilesUploaded    int
	FilesSkipped     int
	SymlinksUploaded int
	SymlinksSkipped  int
	BytesUploaded    int64
}

// Upload pushes every distinct blob in snap — trees, then files, then
// symlinks — through client.PutBlob, tallying new versus deduplicated
// bytes. Files are read from disk lazily; a file present at capture but
// gone by upload time fails the whole operation.
func Upload(ctx context.Context, snap *Snapshot, client BlobPutter) (UploadResult, error) {
	var result UploadResult

	for _, blob := range snap.Trees {
		_, wasNew, err := client.PutBlob(ctx, blob)
		if err != nil {
			return result, newErr(KindClient, "", err)
		}
		if wasNew {
			result.TreesUploaded++
			result.BytesUploaded += int64(len(blob))
		} else {
			result.TreesSkipped++
		}
	}

	for hash, ref := range snap.Files {
		data, err := os.ReadFile(ref.AbsPath)
		if err != nil {
			return result, newErr(KindIo, ref.AbsPath, err)
		}
		_, wasNew, err := client.PutBlob(ctx, data)
		if err != nil {
			return result, newErr(KindClient, ref.AbsPath, err)
		}
		if wasNew {
			result.FilesUploaded++
			result.BytesUploaded += int64(len(data))
		} else {
			result.FilesSkipped++
		}
		_ = hash
	}

	for hash, target := range snap.Symlinks {
		_, wasNew, err := client.PutBlob(ctx, []byte(target))
		if err != nil {
			return result, newErr(KindClient, "", err)
		}
		if wasNew {
			result.SymlinksUploaded++
			result.BytesUploaded += int64(len(target))
		} else {
			result.SymlinksSkipped++
		}
		_ = hash
	}

	return result, nil
}

// CaptureAndUpload runs Capture followed by Upload.
func CaptureAndUpload(ctx context.Context, root string, opts Options, client BlobPutter) (*Snapshot, UploadResult, error) {
	snap, err := Capture(root, opts)
	if err != nil {
		return nil, UploadResult{}, err
	}
	result, err := Upload(ctx, snap, client)
	return snap, result, err
}

// UploadAndAttach runs Capture, Upload, and AttachFs(turnID, root_hash)
// in sequence.
func UploadAndAttach(ctx context.Context, root string, opts Options, turnID uint64, client BlobPutter) (*Snapshot, UploadResult, error) {
	snap, result, err := CaptureAndUpload(ctx, root, opts, client)
	if err != nil {
		return nil, result, err
	}
	if err := client.AttachFS(ctx, turnID, snap.RootHash[:]); err != nil {
		return snap, result, newErr(KindClient, "", err)
	}
	return snap, result, nil
}
