package main

func __kmpc_fork_call(loc int32, nargs int32, microtask any) {}

func __kmpc_for_static_init_4(loc int32, gtid int32, schedtype int32, plastiter *int32, plower *int32, pupper *int32, pstride *int32, incr int32, chunk int32) {
	*plower = 0
	*pupper = 1023
	*pstride = 1
	*plastiter = 1
}

//cgraomp:offload-info dev=0x806 file=0x13 name=vecAdd line=18 order=0
func __omp_offloading_806_13_vecAdd_l18(a []int32, b []int32, c []int32, n int32) {
	var lastiter, lower, upper, stride int32
	lower = 0
	upper = n - 1
	stride = 1
	__kmpc_for_static_init_4(0, 0, 34, &lastiter, &lower, &upper, &stride, 1, 0)
	for i := lower; i <= upper; i++ {
		c[i] = a[i] + 10*b[i]
	}
}

func vecAdd(a, b, c []int32, n int32) {
	__kmpc_fork_call(0, 4, __omp_offloading_806_13_vecAdd_l18)
}

func main() {
	n := int32(1024)
	a := make([]int32, n)
	b := make([]int32, n)
	c := make([]int32, n)
	vecAdd(a, b, c, n)
}
