package testutil

import "strings"

// KernelSource is a small kernel with two labelled loops and an array
// parameter.
const KernelSource = `#include "k.h"

void k(float buf[256], int n) {
  int acc = 0;
  L1: for (int i = 0; i < 256; i++) {
    acc += buf[i];
  }
  L2: for (int j = 0; j < n; j++) {
    buf[j] = acc;
  }
}
`

// kernelDOTTemplate is written for /bin/sh: $top is the kernel name and $n
// the number of pragma lines in the source.
const kernelDOTTemplate = `digraph "$top" {
  node0 [nodeType="instruction", bbID="0", funcID="0", keyText="load", numeric="0"];
  node1 [nodeType="instruction", bbID="0", funcID="0", keyText="br", numeric="0"];
  node2 [nodeType="instruction", bbID="1", funcID="0", keyText="store", numeric="0"];
  node3 [nodeType="variable", bbID="1", funcID="0", keyText="i32", numeric="0"];
  node4 [nodeType="pragma", bbID="1", funcID="0", keyText="unroll", numeric="$n"];
  node0 -> node1 [flowType="control", edgeOrder="0"];
  node1 -> node2 [flowType="control", edgeOrder="0"];
  node3 -> node0 [flowType="dataflow", edgeOrder="1"];
  node0 -> node2 [flowType="call", edgeOrder="0", style="dashed"];
  node4 -> node2 [flowType="pragma", edgeOrder="0"];
}
`

// KernelDOT is the document the fake tool prints for kernel k when the
// source carries no pragma. Its block-level control flow is 0 -> 1 and,
// through the reversed call edge, 1 -> 0.
var KernelDOT = strings.NewReplacer("$top", "k", "$n", "0").Replace(kernelDOTTemplate)
