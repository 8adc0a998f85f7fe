package transform

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/weatherlake/internal/storage"
	"github.com/tigerroll/weatherlake/internal/support/util/exception"
	"github.com/tigerroll/weatherlake/internal/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// OutputBaseDir is the base directory within the bucket for written files (e.g., "processed").
	OutputBaseDir string `mapstructure:"outputBaseDir"`
	// CompressionType is the compression type for parquet files ("SNAPPY", "GZIP", "NONE").
	CompressionType string `mapstructure:"compressionType"`
}

// ParquetWriter buffers records by partition key and, on Flush, writes one
// parquet file per partition and uploads it to the configured bucket. Every
// run produces new uniquely-named files, which gives the processed hierarchy
// its append-mode semantics.
type ParquetWriter[T any] struct {
	name   string
	config *ParquetWriterConfig
	conn   storage.Connection
	bucket string
	// itemPrototype is a pointer to a zero-value instance of the item type, used for parquet schema reflection.
	itemPrototype *T
	// partitionKeyFunc extracts the Hive-style partition key (e.g., "dt=.../city=.../hour=...") from an item.
	partitionKeyFunc func(T) (string, error)

	// bufferedItems stores items buffered by partition key.
	bufferedItems map[string][]T
	// totalRecordsBuffered is the total count of all buffered records.
	totalRecordsBuffered int64
}

// NewParquetWriter creates a new ParquetWriter instance.
//
// Parameters:
//
//	name: The unique name of the writer.
//	properties: Configuration properties for the writer.
//	conn: The storage connection to upload through.
//	bucket: The destination bucket.
//	itemPrototype: A prototype instance of the item type for schema reflection.
//	partitionKeyFunc: A function to extract the partition key from an item.
func NewParquetWriter[T any](
	name string,
	properties map[string]string,
	conn storage.Connection,
	bucket string,
	itemPrototype *T,
	partitionKeyFunc func(T) (string, error),
) (*ParquetWriter[T], error) {
	var config ParquetWriterConfig

	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           &config,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, exception.NewPipelineError(ModuleTransform, fmt.Sprintf("Failed to create decoder for ParquetWriter '%s'", name), err, false, false)
	}
	if err := decoder.Decode(properties); err != nil {
		return nil, exception.NewPipelineError(ModuleTransform, fmt.Sprintf("Failed to decode ParquetWriter '%s' properties", name), err, false, false)
	}

	if config.OutputBaseDir == "" {
		return nil, exception.NewPipelineErrorf(ModuleTransform, "ParquetWriter '%s' requires 'outputBaseDir' property.", name)
	}
	if bucket == "" {
		return nil, exception.NewPipelineErrorf(ModuleTransform, "ParquetWriter '%s' requires a destination bucket.", name)
	}
	if config.CompressionType == "" {
		config.CompressionType = "SNAPPY"
	}

	return &ParquetWriter[T]{
		name:             name,
		config:           &config,
		conn:             conn,
		bucket:           bucket,
		itemPrototype:    itemPrototype,
		partitionKeyFunc: partitionKeyFunc,
		bufferedItems:    make(map[string][]T),
	}, nil
}

// Write accumulates the received items into the internal per-partition
// buffers. No parquet file is produced until Flush.
func (w *ParquetWriter[T]) Write(ctx context.Context, items []T) error {
	for _, item := range items {
		partitionKey, err := w.partitionKeyFunc(item)
		if err != nil {
			return exception.NewPipelineError(ModuleTransform, fmt.Sprintf("Failed to get partition key for item in ParquetWriter '%s'", w.name), err, false, false)
		}
		w.bufferedItems[partitionKey] = append(w.bufferedItems[partitionKey], item)
		w.totalRecordsBuffered++
	}
	logger.Debugf("ParquetWriter '%s' buffered %d items. Total buffered: %d.", w.name, len(items), w.totalRecordsBuffered)
	return nil
}

// Flush finalizes all buffered data into parquet files and uploads them.
// One file is written per partition, named with a timestamp and a unique
// suffix to avoid collisions across runs. Partition failures are aggregated;
// the buffers are cleared regardless of outcome.
func (w *ParquetWriter[T]) Flush(ctx context.Context) error {
	logger.Debugf("ParquetWriter '%s' Flush called. Total records buffered: %d.", w.name, w.totalRecordsBuffered)

	if w.totalRecordsBuffered == 0 {
		logger.Infof("ParquetWriter '%s': No records buffered, skipping parquet file generation.", w.name)
		return nil
	}

	compressionCodec, err := getCompressionCodec(w.config.CompressionType)
	if err != nil {
		return exception.NewPipelineError(ModuleTransform, fmt.Sprintf("Invalid compression type '%s' for ParquetWriter '%s'", w.config.CompressionType, w.name), err, false, false)
	}

	var multiErr error

outerLoop:
	for partitionKey, items := range w.bufferedItems {
		logger.Debugf("ParquetWriter '%s': Processing partition '%s' with %d items.", w.name, partitionKey, len(items))

		buf := new(bytes.Buffer)

		// One row group per file: the row group size is the partition's item count.
		pw, err := writer.NewParquetWriterFromWriter(buf, w.itemPrototype, int64(len(items)))
		if err != nil {
			multiErr = multierror.Append(multiErr, fmt.Errorf("failed to create parquet writer for partition '%s': %w", partitionKey, err))
			continue outerLoop
		}
		pw.CompressionType = compressionCodec

		for _, item := range items {
			if err := pw.Write(item); err != nil {
				multiErr = multierror.Append(multiErr, fmt.Errorf("failed to write item to parquet for partition '%s': %w", partitionKey, err))
				continue outerLoop
			}
		}

		// WriteStop may panic inside the library; convert that to an error.
		var stopErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					stopErr = fmt.Errorf("parquet writer panicked during WriteStop for partition '%s': %v", partitionKey, r)
					logger.Errorf("ParquetWriter '%s': Recovered from panic during WriteStop: %v", w.name, r)
				}
			}()
			stopErr = pw.WriteStop()
		}()
		if stopErr != nil {
			multiErr = multierror.Append(multiErr, stopErr)
			continue outerLoop
		}

		fileName := fmt.Sprintf("data_%s_%s.parquet", time.Now().UTC().Format("20060102150405"), shortID())
		objectName := path.Join(w.config.OutputBaseDir, partitionKey, fileName)

		logger.Debugf("ParquetWriter '%s': Uploading %d bytes to %s/%s", w.name, buf.Len(), w.bucket, objectName)
		if err := w.conn.Upload(ctx, w.bucket, objectName, buf, "application/octet-stream"); err != nil {
			multiErr = multierror.Append(multiErr, fmt.Errorf("failed to upload parquet file for partition '%s' to '%s': %w", partitionKey, objectName, err))
		} else {
			logger.Infof("ParquetWriter '%s': Successfully uploaded parquet file for partition '%s' to %s", w.name, partitionKey, objectName)
		}
	}

	w.bufferedItems = make(map[string][]T)
	w.totalRecordsBuffered = 0

	return multiErr
}

// getCompressionCodec returns the parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

// shortID returns a short unique suffix for generated file names.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
