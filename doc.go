// Package convkit converts structured data between CSV, Excel, JSON, YAML and
// XML through one intermediate representation, validates documents against
// declarative schemas, and wraps the output in compression and encryption.
//
// Every format is read into an [ir.Node] tree and written from one, so any
// pair of formats converts. Tables stream: rows are read, validated and
// written one at a time, and a conversion of a large CSV file holds a few rows
// in memory, not the file.
//
// # Basic Usage
//
//	c := convkit.NewConverter()
//
//	var out bytes.Buffer
//	res, err := c.Convert(ctx, src, convkit.WriterSink(&out), "csv", "json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Summary())
//
// A conversion writes into a [Sink] and commits it only after every step
// succeeded. On any failure the sink is aborted, so a destination never holds
// partial output.
//
// # Options
//
// Conversions are configured with functional options:
//
//	res, err := c.Convert(ctx, src, dst, "json", "csv",
//	    convkit.WithFlatten(true),                      // nested records become dotted columns
//	    convkit.WithSchemaName("orders"),               // validate against a registered schema
//	    convkit.WithStrict(true),                       // abort on violations
//	    convkit.WithCompression("zstd"),                // compress the output
//	    convkit.WithEncryption(key),                    // then encrypt it
//	    convkit.WithChecksums(convkit.ChecksumSHA256),  // digest of the bytes written
//	)
//
// Encrypted and compressed inputs are recognised by their leading bytes and
// opened automatically; encrypted input needs [WithDecryption].
//
// # Stores
//
// A [Store] holds files: driver/local keeps them on disk and driver/memory in
// memory. driver/s3, driver/gcs, driver/azure and driver/sftp are separate
// modules; importing one registers it for [OpenStore]. [Converter.ConvertFile] takes formats and compression from file
// names, and [Converter.ConvertAll] converts every file matching a pattern
// concurrently:
//
//	store, _ := local.New("./exports")
//	results, err := c.ConvertAll(ctx, store, "**.csv", "json", convkit.WithCompression("gzip"))
//
// The [MountManager] combines stores under virtual directories, and
// [ReadOnly] protects the inputs:
//
//	mounts := convkit.NewMountManager()
//	mounts.Mount("/in", convkit.ReadOnly(inputs))
//	mounts.Mount("/out", outputs)
//	c.ConvertFile(ctx, mounts, "in/orders.csv.gz", "out/orders.json")
//
// Stores implementing [CanWatch] report changes to matching files. Stores
// without change events watch with [PollingWatch].
//
// # Error Handling
//
// Every failure belongs to one class of the errs package taxonomy:
//
//	_, err := c.Convert(ctx, src, dst, "json", "csv")
//	switch errs.KindOf(err) {
//	case errs.KindParse:            // malformed input
//	case errs.KindShapeMismatch:    // a nested document for a tabular format
//	case errs.KindValidationFailed: // strict schema violation
//	    report, _ := convkit.ReportOf(err)
//	}
//
// # Configuration
//
// convkit can be configured via environment variables with the
// BEAVER_CONVKIT_ prefix, a YAML file, or programmatically via the [Config]
// struct:
//
//	cfg, err := convkit.LoadConfigFile("convkit.yaml")
//	c, err := convkit.New(cfg)
package convkit
