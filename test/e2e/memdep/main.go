package main

func __kmpc_fork_call(loc int32, nargs int32, microtask any) {}

//cgraomp:offload-info dev=0x806 file=0x15 name=prefixAdd line=8 order=0
func __omp_offloading_806_15_prefixAdd_l8(a []int32, b []int32, n int32) {
	for i := int32(1); i < n; i++ {
		b[i] = a[i] + b[i-1]
	}
}

func prefixAdd(a, b []int32, n int32) {
	__kmpc_fork_call(0, 3, __omp_offloading_806_15_prefixAdd_l8)
}

func main() {
	n := int32(1024)
	a := make([]int32, n)
	b := make([]int32, n)
	prefixAdd(a, b, n)
}
