/*
Package engine implements the back-end of testclient - a synthetic HTTP
workload generator used to stress-test caching proxies, CDNs, and origin
servers.

 testclient
 ==========

 * Maintains a steady-state pool of concurrent GET transactions against a
   catalog of URLs (optionally spread across a weighted set of backend
   servers).
 * Each transaction may carry a perturbation: a byte-range request,
   bandwidth throttling, early termination, an immediate repeat of the
   previous URL, or a randomized query string.
 * Completed transactions are verified byte-for-byte against an expected
   MD5 digest or a local reference file.

 Installation
 ============
 ```
 go get -u github.com/loadlab/testclient
 ```

 Usage
 =====
 ```
 testclient [options] <url-file>
 ```

 Config
 ======
 testclient is configured by config file, command line flags, or environment
 variables. The `--config` flag specifies the config file to load; the file
 grammar is `key = value` lines, blank lines ignored, `#` begins a comment.
 This is the same grammar [viper](https://github.com/spf13/viper) recognizes
 as the "properties" format. If `--config` is omitted, no config file is
 read.

 Environment variables are upper case and prefixed with "TESTCLIENT", e.g.
 `TESTCLIENT_THROTTLE_MIN`. Command line flags override both.
*/
package engine
