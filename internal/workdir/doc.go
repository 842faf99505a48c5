// Package workdir manages the per-chain working directories under
// paths.work_dir. Each chain owns one directory named after its chain id;
// objects are assembled there before publication and removed by the
// cleanup_directories task.
package workdir
